package session_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsync/client/apiclient"
	"finsync/client/finance"
	"finsync/client/localstore"
	"finsync/client/session"
	domainconfig "finsync/domain/config"
	"finsync/domain/core/aggregates"
	"finsync/infrastructure/config"
	"finsync/infrastructure/di"
)

const password = "correct horse battery"

type backend struct {
	server *httptest.Server
	down   atomic.Bool
}

// newBackend runs the real HTTP stack on the memory store. While down is set
// every request is dropped without an answer.
func newBackend(t *testing.T) *backend {
	t.Helper()
	cfg := &config.Config{
		Environment:         "test",
		MaxBodyBytes:        1 << 20,
		StoreBackend:        config.BackendMemory,
		LogLevel:            "error",
		JWTSecret:           "session-e2e-secret",
		JWTIssuer:           "finsync",
		JWTTTL:              time.Hour,
		BcryptCost:          4,
		SyncVersionPolicy:   domainconfig.VersionPolicyPermissive,
		WriteRetries:        3,
		AuthRateLimit:       1000,
		AuthRateLimitWindow: time.Minute,
		LockDuration:        time.Second,
		LockWaitLimit:       time.Second,
	}
	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)

	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.down.Load() {
			panic(http.ErrAbortHandler)
		}
		container.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		b.server.Close()
		cleanup()
	})
	return b
}

func newApp(t *testing.T, b *backend, store *localstore.Store) *session.App {
	t.Helper()
	if store == nil {
		var err error
		store, err = localstore.Open(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}
	api := apiclient.NewClient(b.server.URL, apiclient.WithHTTPClient(b.server.Client()))
	app := session.NewApp(api, store, session.SyncConfig{
		Debounce:           40 * time.Millisecond,
		MaxConflictRetries: 3,
		RequestTimeout:     2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { <-app.Close() })
	return app
}

func waitFor(t *testing.T, app *session.App, status session.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return app.Sync.Status() == status }, 3*time.Second, 10*time.Millisecond,
		"status stayed %s", app.Sync.Status())
}

func signIn(t *testing.T, app *session.App, email string, register bool) {
	t.Helper()
	ctx := context.Background()
	var err error
	if register {
		_, err = app.Auth.Register(ctx, email, password, "")
	} else {
		_, err = app.Auth.Login(ctx, email, password)
	}
	require.NoError(t, err)
	waitFor(t, app, session.StatusSynced)
}

func TestE2E_LegacyLabelBecomesCategoryReference(t *testing.T) {
	b := newBackend(t)
	app := newApp(t, b, nil)
	signIn(t, app, "food@example.com", true)

	_, err := app.Finance.AddExpense(finance.ExpenseInput{
		Date: "2025-05-02", Amount: decimal.RequireFromString("12.5"), CategoryName: "Food",
	})
	require.NoError(t, err)
	<-app.Close()
	require.Equal(t, int64(1), app.Sync.Version())

	require.NoError(t, app.Sync.PullCloud(context.Background()))

	cats, err := app.API.ListCategories(context.Background())
	require.NoError(t, err)
	var foodID int64
	for _, c := range cats {
		if c.Name == "Food" {
			foodID = c.ID
		}
	}
	require.NotZero(t, foodID)

	txs := app.Finance.Document().Transactions()
	require.Len(t, txs, 1)
	id, ok := txs[0].CategoryID()
	require.True(t, ok)
	assert.Equal(t, foodID, id)
	assert.True(t, finance.Amount(txs[0]["amount"]).Equal(decimal.RequireFromString("12.5")))
}

func TestE2E_TwoClientsLastWriteWins(t *testing.T) {
	b := newBackend(t)
	alice := newApp(t, b, nil)
	bob := newApp(t, b, nil)
	signIn(t, alice, "shared@example.com", true)
	signIn(t, bob, "shared@example.com", false)

	_, err := alice.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(100), Note: "alice"})
	require.NoError(t, err)
	<-alice.Close()
	require.Equal(t, session.StatusSynced, alice.Sync.Status())

	_, err = bob.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(7), Note: "bob"})
	require.NoError(t, err)
	<-bob.Close()

	assert.Equal(t, session.StatusSynced, bob.Sync.Status())
	assert.Greater(t, bob.Sync.Version(), alice.Sync.Version())

	require.NoError(t, alice.Sync.PullCloud(context.Background()))
	txs := alice.Finance.Document().Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "bob", txs[0]["note"])
	assert.Equal(t, bob.Sync.Version(), alice.Sync.Version())
}

func TestE2E_DebouncedMutationsArriveAsOnePush(t *testing.T) {
	b := newBackend(t)
	app := newApp(t, b, nil)
	signIn(t, app, "debounce@example.com", true)

	for i := 1; i <= 5; i++ {
		_, err := app.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return app.Sync.Status() == session.StatusSynced && !app.Sync.HasPending()
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), app.Sync.Version())

	snap, err := app.API.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.State.Transactions(), 5)
}

func TestE2E_OfflineThenResume(t *testing.T) {
	b := newBackend(t)
	app := newApp(t, b, nil)
	signIn(t, app, "offline@example.com", true)

	b.down.Store(true)
	_, err := app.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	waitFor(t, app, session.StatusOffline)
	assert.True(t, app.Sync.HasPending())
	assert.True(t, app.Auth.Online())

	b.down.Store(false)
	app.Sync.Resume()

	waitFor(t, app, session.StatusSynced)
	assert.Equal(t, int64(1), app.Sync.Version())
}

func TestE2E_UnencodableDocumentNeverLeavesTheClient(t *testing.T) {
	b := newBackend(t)
	app := newApp(t, b, nil)
	signIn(t, app, "nan@example.com", true)

	require.NoError(t, app.Finance.UpdateProfile(map[string]any{"startingBalance": math.NaN()}))

	waitFor(t, app, session.StatusError)
	assert.ErrorIs(t, app.Sync.LastError(), aggregates.ErrUnencodableDocument)
	snap, err := app.API.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
}

func TestE2E_OfflineModePersistsLocallyAndLoginReplacesIt(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	store, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	first := newApp(t, b, store)
	first.Auth.UseOffline(ctx)
	_, err = first.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, session.StatusOffline, first.Sync.Status())

	second := newApp(t, b, store)
	assert.Len(t, second.Finance.Document().Transactions(), 1)

	signIn(t, second, "local@example.com", true)
	assert.Empty(t, second.Finance.Document().Transactions())
	doc, err := store.LoadDocument(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestE2E_RejectedTokenForcesOffline(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	store, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SaveAuth(ctx, localstore.AuthRecord{Mode: localstore.ModeOnline, Token: "not-a-jwt"}))

	app := newApp(t, b, store)

	require.Eventually(t, func() bool { return !app.Auth.Online() }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.StatusOffline, app.Sync.Status())
	rec, err := store.LoadAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, localstore.ModeOffline, rec.Mode)
}

func TestE2E_UnsentChangesAreSentByTheNextRun(t *testing.T) {
	// Arrange: a run that records a change while the server is unreachable
	b := newBackend(t)
	ctx := context.Background()
	store, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	first := newApp(t, b, store)
	signIn(t, first, "restart@example.com", true)
	b.down.Store(true)
	_, err = first.Finance.AddIncome(finance.IncomeInput{Amount: decimal.NewFromInt(25), Note: "saved"})
	require.NoError(t, err)
	waitFor(t, first, session.StatusOffline)
	<-first.Close()
	unsent, err := store.LoadUnsent(ctx)
	require.NoError(t, err)
	require.NotNil(t, unsent)

	// Act: the next run starts once the server is back
	b.down.Store(false)
	second := newApp(t, b, store)

	// Assert
	require.Eventually(t, func() bool {
		return second.Sync.Status() == session.StatusSynced && second.Sync.Version() == 1
	}, 3*time.Second, 10*time.Millisecond)
	snap, err := second.API.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, snap.State.Transactions(), 1)
	assert.Equal(t, "saved", snap.State.Transactions()[0]["note"])
	unsent, err = store.LoadUnsent(ctx)
	require.NoError(t, err)
	assert.Nil(t, unsent)
}
