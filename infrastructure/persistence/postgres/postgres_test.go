package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/domain/core/valueobjects"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

// testPool connects to FINSYNC_TEST_DATABASE_URL or skips
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("FINSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FINSYNC_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, url, 4)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestSnapshotStore_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewSnapshotStore(pool)
	account := uuid.NewString()

	_, err := store.Read(ctx, account)
	assert.ErrorIs(t, err, ports.ErrSnapshotNotFound)

	res, err := store.Write(ctx, account, aggregates.Document{"n": 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)

	_, err = store.Write(ctx, account, aggregates.Document{"n": 2}, 0)
	vc, ok := ports.AsVersionConflict(err)
	require.True(t, ok)
	assert.Equal(t, int64(1), vc.ServerVersion)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Write(ctx, account, aggregates.Document{}, 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	snap, err := store.Read(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
}

func TestCategoryDirectory_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	dir := NewCategoryDirectory(pool)
	account := uuid.NewString()

	name, _ := valueobjects.NewCategoryName("Food")
	food, err := entities.NewCategory(account, name, valueobjects.CategoryKindExpense, 0)
	require.NoError(t, err)
	require.NoError(t, dir.Create(ctx, food))
	assert.Positive(t, food.ID())

	upper, _ := valueobjects.NewCategoryName("FOOD")
	dup, _ := entities.NewCategory(account, upper, valueobjects.CategoryKindExpense, 0)
	assert.ErrorIs(t, dir.Create(ctx, dup), ports.ErrDuplicateCategoryName)

	found, err := dir.FindByName(ctx, account, "food")
	require.NoError(t, err)
	assert.Equal(t, food.ID(), found.ID())

	require.NoError(t, dir.Delete(ctx, account, food.ID()))
	assert.ErrorIs(t, dir.Delete(ctx, account, food.ID()), ports.ErrCategoryNotFound)
}

func TestAdvisoryLocker_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	locker := NewAdvisoryLocker(pool, 100*time.Millisecond)
	resource := "categories#" + uuid.NewString()

	lock, err := locker.Acquire(ctx, resource)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, resource)
	assert.ErrorIs(t, err, ports.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	again, err := locker.Acquire(ctx, resource)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
