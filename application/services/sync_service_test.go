package services

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsync/application/ports"
	"finsync/domain/config"
	"finsync/domain/core/aggregates"
	"finsync/domain/events"
	pkgerrors "finsync/pkg/errors"
)

func TestSyncService_PullFreshAccount(t *testing.T) {
	f := newFixture(t, config.VersionPolicyPermissive)

	res, err := f.sync.Pull(context.Background(), "acc")

	require.NoError(t, err)
	assert.Nil(t, res.Document)
	assert.Zero(t, res.Version)
	assert.Nil(t, res.UpdatedAt)
	assert.Zero(t, f.store.writeCount())
	_, err = f.categories.FindByName(context.Background(), "acc", "Other")
	assert.NoError(t, err, "a fresh account gets its fallback category on first pull")
}

func TestSyncService_FoodScenario(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	state := decode(t, `{"transactions":[{"type":"expense","amount":10,"category":"Food"}]}`)

	// Act
	pushed, err := f.sync.Push(ctx, "acc", state, 0)
	require.NoError(t, err)
	pulled, err := f.sync.Pull(ctx, "acc")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(1), pushed.Version)
	assert.Equal(t, int64(2), pulled.Version, "migration persists as a new version")
	assert.Equal(t, []any{}, pulled.Document["categories"])

	food, err := f.categories.FindByName(ctx, "acc", "food")
	require.NoError(t, err)
	txs := pulled.Document.Transactions()
	require.Len(t, txs, 1)
	id, ok := txs[0].CategoryID()
	require.True(t, ok)
	assert.Equal(t, food.ID(), id)

	_, err = f.categories.FindByName(ctx, "acc", "Other")
	assert.NoError(t, err)
	assert.Contains(t, f.publisher.types(), events.TypeSnapshotMigrated)

	again, err := f.sync.Pull(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
}

func TestSyncService_PullNormalizesMissingCategoriesList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{"transactions":[{"type":"income","amount":3}]}`), 0)
	require.NoError(t, err)

	res, err := f.sync.Pull(ctx, "acc")

	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)
	categories, present := res.Document["categories"]
	assert.True(t, present)
	assert.Equal(t, []any{}, categories)
}

func TestSyncService_MigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	state := decode(t, `{"transactions":[{"type":"expense","category":"  Eating   out "},{"type":"income","amount":5}]}`)
	_, err := f.sync.Push(ctx, "acc", state, 0)
	require.NoError(t, err)

	first, err := f.sync.Pull(ctx, "acc")
	require.NoError(t, err)
	writes := f.store.writeCount()
	second, err := f.sync.Pull(ctx, "acc")
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, writes, f.store.writeCount())
	assert.Empty(t, second.Migrated)

	_, hasID := second.Document.Transactions()[1].CategoryID()
	assert.False(t, hasID, "income is left alone")
	_, err = f.categories.FindByName(ctx, "acc", "Eating out")
	assert.NoError(t, err)
}

func TestSyncService_PullWithoutLegacyDataIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{"profile":{"name":"x"}}`), 0)
	require.NoError(t, err)

	res, err := f.sync.Pull(ctx, "acc")

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, 1, f.store.writeCount())
}

func TestSyncService_TwoClientConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	for v := int64(0); v < 3; v++ {
		_, err := f.sync.Push(ctx, "acc", decode(t, `{"n":1}`), v)
		require.NoError(t, err)
	}

	a, err := f.sync.Push(ctx, "acc", decode(t, `{"from":"A"}`), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.Version)

	_, err = f.sync.Push(ctx, "acc", decode(t, `{"from":"B"}`), 3)
	vc, ok := ports.AsVersionConflict(err)
	require.True(t, ok)
	assert.Equal(t, int64(4), vc.ServerVersion)

	pulled, err := f.sync.Pull(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "A", pulled.Document["from"])

	b, err := f.sync.Push(ctx, "acc", decode(t, `{"from":"B"}`), pulled.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Version)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SyncPushes.WithLabelValues(PushConflict)))
}

func TestSyncService_BehindNeverMutates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{"keep":true}`), 0)
	require.NoError(t, err)
	_, err = f.sync.Push(ctx, "acc", decode(t, `{"keep":true}`), 1)
	require.NoError(t, err)

	_, err = f.sync.Push(ctx, "acc", decode(t, `{"keep":false}`), 1)
	require.Error(t, err)

	snap, err := f.store.Read(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, true, snap.Document["keep"])
}

func TestSyncService_AheadAcceptedUnderPermissive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)

	res, err := f.sync.Push(ctx, "acc", decode(t, `{"a":1}`), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
	snap, err := f.store.Read(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, decode(t, `{"a":1}`), snap.Document)
}

func TestSyncService_AheadRejectedUnderStrict(t *testing.T) {
	f := newFixture(t, config.VersionPolicyStrict)

	_, err := f.sync.Push(context.Background(), "acc", decode(t, `{"a":1}`), 7)

	vc, ok := ports.AsVersionConflict(err)
	require.True(t, ok)
	assert.Zero(t, vc.ServerVersion)
}

func TestSyncService_RejectsInvalidDocumentsBeforeStore(t *testing.T) {
	f := newFixture(t, config.VersionPolicyPermissive)
	ctx := context.Background()

	tests := []struct {
		name    string
		state   any
		version int64
	}{
		{name: "unencodable", state: map[string]any{"x": math.Inf(1)}},
		{name: "not an object", state: []any{1, 2}},
		{name: "missing", state: nil},
		{name: "negative version", state: map[string]any{}, version: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sync.Push(ctx, "acc", tt.state, tt.version)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
	assert.Zero(t, f.store.writeCount())
}

func TestSyncService_CASLossBecomesConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	f.store.conflictWrites = 1

	_, err := f.sync.Push(ctx, "acc", decode(t, `{}`), 0)

	vc, ok := ports.AsVersionConflict(err)
	require.True(t, ok)
	assert.Equal(t, int64(1), vc.ServerVersion)
}

func TestSyncService_MigrationRetriesAfterLostRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{"transactions":[{"type":"expense","category":"Rent"}]}`), 0)
	require.NoError(t, err)

	raced := false
	f.store.beforeWrite = func() {
		if raced {
			return
		}
		raced = true
		// another device saves between the migration's read and write
		_, err := f.store.SnapshotStore.Write(ctx, "acc", decode(t, `{"transactions":[{"type":"expense","category":"Gas"}]}`), 1)
		require.NoError(t, err)
	}

	res, err := f.sync.Pull(ctx, "acc")

	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)
	gas, err := f.categories.FindByName(ctx, "acc", "Gas")
	require.NoError(t, err)
	id, _ := res.Document.Transactions()[0].CategoryID()
	assert.Equal(t, gas.ID(), id)
}

func TestSyncService_MigrationGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{"categories":["x"]}`), 0)
	require.NoError(t, err)
	f.store.conflictWrites = 10

	_, err = f.sync.Pull(ctx, "acc")

	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeMigrationUnsettled, appErr.Code)
}

func TestSyncService_ConcurrentPushesSameVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	_, err := f.sync.Push(ctx, "acc", decode(t, `{}`), 0)
	require.NoError(t, err)

	var mu sync.Mutex
	versions := map[int64]int{}
	conflicts := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.sync.Push(ctx, "acc", aggregates.Document{}, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				conflicts++
				return
			}
			versions[res.Version]++
		}()
	}
	wg.Wait()

	for v, n := range versions {
		assert.Equal(t, 1, n, "version %d produced twice", v)
	}
	assert.Equal(t, 10, conflicts+len(versions))
}
