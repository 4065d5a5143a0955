package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsync/domain/config"
	"finsync/domain/events"
	pkgerrors "finsync/pkg/errors"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestCategoryService_ListCreatesOther(t *testing.T) {
	f := newFixture(t, config.VersionPolicyPermissive)

	cats, err := f.category.List(context.Background(), "acc")

	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Other", cats[0].Name().String())
	assert.Equal(t, 9999, cats[0].SortOrder())

	again, err := f.category.List(context.Background(), "acc")
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestCategoryService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)

	cat, err := f.category.Create(ctx, "acc", "  Pet   food ", "BUCKET")
	require.NoError(t, err)
	assert.Equal(t, "Pet food", cat.Name().String())
	assert.Equal(t, "bucket", string(cat.Kind()))
	assert.Contains(t, f.publisher.types(), events.TypeCategoryCreated)

	_, err = f.category.Create(ctx, "acc", "pet FOOD", "")
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Equal(t, pkgerrors.CodeDuplicateCategory, pkgerrors.GetAppError(err).Code)

	_, err = f.category.Create(ctx, "acc", "   ", "")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCategoryService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	cat, err := f.category.Create(ctx, "acc", "Food", "")
	require.NoError(t, err)

	updated, err := f.category.Update(ctx, "acc", cat.ID(), CategoryPatch{Name: strPtr("Groceries"), SortOrder: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Name().String())
	assert.Equal(t, 3, updated.SortOrder())

	_, err = f.category.Update(ctx, "acc", cat.ID(), CategoryPatch{})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = f.category.Update(ctx, "acc", 999, CategoryPatch{Kind: strPtr("debt")})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCategoryService_RenameOtherForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	cats, err := f.category.List(ctx, "acc")
	require.NoError(t, err)

	_, err = f.category.Update(ctx, "acc", cats[0].ID(), CategoryPatch{Name: strPtr("Misc")})

	assert.True(t, pkgerrors.IsForbidden(err))
}

func TestCategoryService_DeleteReassignsToOther(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	food, err := f.category.Create(ctx, "acc", "Food", "")
	require.NoError(t, err)
	rent, err := f.category.Create(ctx, "acc", "Rent", "")
	require.NoError(t, err)

	state := decode(t, `{"transactions":[]}`)
	txs := []any{}
	for i := 0; i < 3; i++ {
		txs = append(txs, map[string]any{"type": "expense", "categoryId": food.ID()})
	}
	txs = append(txs,
		map[string]any{"type": "expense", "categoryId": rent.ID()},
		map[string]any{"type": "income", "categoryId": food.ID()},
	)
	state["transactions"] = txs
	_, err = f.sync.Push(ctx, "acc", state, 0)
	require.NoError(t, err)

	// Act
	res, err := f.category.Delete(ctx, "acc", food.ID())

	// Assert
	require.NoError(t, err)
	other, err := f.categories.FindByName(ctx, "acc", "Other")
	require.NoError(t, err)
	assert.Equal(t, other.ID(), res.ReassignedTo)
	assert.Equal(t, 3, res.Reassigned)

	snap, err := f.store.Read(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	got := snap.Document.Transactions()
	for i := 0; i < 3; i++ {
		id, _ := got[i].CategoryID()
		assert.Equal(t, other.ID(), id)
	}
	rentID, _ := got[3].CategoryID()
	assert.Equal(t, rent.ID(), rentID)
	incomeID, _ := got[4].CategoryID()
	assert.Equal(t, food.ID(), incomeID, "only expenses are reassigned")

	_, err = f.categories.Get(ctx, "acc", food.ID())
	assert.Error(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ReassignedTransactions))
	assert.Contains(t, f.publisher.types(), events.TypeCategoryDeleted)
}

func TestCategoryService_DeleteWithoutReferencesDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	cat, err := f.category.Create(ctx, "acc", "Unused", "")
	require.NoError(t, err)

	res, err := f.category.Delete(ctx, "acc", cat.ID())

	require.NoError(t, err)
	assert.Zero(t, res.Reassigned)
	assert.Zero(t, f.store.writeCount())
}

func TestCategoryService_DeleteOtherForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	cats, err := f.category.List(ctx, "acc")
	require.NoError(t, err)

	_, err = f.category.Delete(ctx, "acc", cats[0].ID())
	assert.True(t, pkgerrors.IsForbidden(err))

	_, err = f.category.Delete(ctx, "acc", 12345)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCategoryService_DeleteRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.VersionPolicyPermissive)
	food, err := f.category.Create(ctx, "acc", "Food", "")
	require.NoError(t, err)
	state := decode(t, `{}`)
	state["transactions"] = []any{map[string]any{"type": "expense", "categoryId": food.ID()}}
	_, err = f.sync.Push(ctx, "acc", state, 0)
	require.NoError(t, err)
	f.store.conflictWrites = 1

	res, err := f.category.Delete(ctx, "acc", food.ID())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Reassigned)
}
