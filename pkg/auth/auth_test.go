package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(JWTConfig{
		SecretKey: "test-secret",
		Issuer:    "finsync",
		Audience:  []string{"finsync-api"},
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.GenerateToken("acct-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestJWTManager_Expired(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.GenerateToken("acct-1", "a@example.com")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	m := newTestManager(t)
	token, _, err := m.GenerateToken("acct-1", "a@example.com")
	require.NoError(t, err)

	other, err := NewJWTManager(JWTConfig{SecretKey: "other", Issuer: "finsync"})
	require.NoError(t, err)
	_, err = other.ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestJWTManager_RejectsWrongAudience(t *testing.T) {
	issuer, err := NewJWTManager(JWTConfig{SecretKey: "s", Audience: []string{"elsewhere"}})
	require.NoError(t, err)
	token, _, err := issuer.GenerateToken("acct-1", "")
	require.NoError(t, err)

	validator, err := NewJWTManager(JWTConfig{SecretKey: "s", Audience: []string{"finsync-api"}})
	require.NoError(t, err)
	_, err = validator.ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestJWTManager_MissingToken(t *testing.T) {
	_, err := newTestManager(t).ValidateToken("   ")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewJWTManager(JWTConfig{})
	assert.Error(t, err)
}

func TestUserContext(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.Error(t, err)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "acct-9"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acct-9", user.UserID)
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(2, time.Minute)
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	ok, _ := l.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "ip:5.6.7.8")
	assert.True(t, ok, "keys are independent")

	current = current.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok, "window slides")
}

func TestSlidingWindowLimiter_ResetAndPrune(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(1, time.Minute)
	current := time.Now()
	l.now = func() time.Time { return current }

	_, _ = l.Allow(ctx, "a")
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, "a"))
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Prune())
}

type mockCounterAPI struct {
	mock.Mock
}

func (m *mockCounterAPI) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockCounterAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	api := new(mockCounterAPI)
	l := NewDistributedRateLimiter(api, "finsync", 12, time.Minute, "AUTH")

	api.On("UpdateItem", ctx, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.TableName == "finsync"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()
	api.On("UpdateItem", ctx, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()
	api.On("UpdateItem", ctx, mock.Anything).
		Return(nil, errors.New("throttled")).Once()

	ok, err := l.Allow(ctx, "login|1.2.3.4")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = l.Allow(ctx, "login|1.2.3.4")
	assert.False(t, ok)
	assert.NoError(t, err)

	ok, err = l.Allow(ctx, "login|1.2.3.4")
	assert.True(t, ok, "store failures fail open")
	assert.Error(t, err)

	api.AssertExpectations(t)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)

	assert.NoError(t, h.Compare(hash, "correct horse"))
	assert.ErrorIs(t, h.Compare(hash, "wrong horse"), ErrPasswordMismatch)
}
