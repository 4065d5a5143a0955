package migration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/infrastructure/persistence/memory"
	"finsync/pkg/observability"
)

func decode(t *testing.T, raw string) aggregates.Document {
	t.Helper()
	doc, err := aggregates.DecodeDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestEngine_Register(t *testing.T) {
	e := NewEngine(zap.NewNop(), nil)
	noop := func(context.Context, *Context) (bool, error) { return false, nil }

	require.NoError(t, e.Register(Step{Name: "a", Apply: noop}))
	require.NoError(t, e.Register(Step{Name: "b", Apply: noop}))
	assert.Error(t, e.Register(Step{Name: "a", Apply: noop}))
	assert.Error(t, e.Register(Step{Name: "c"}))
	assert.Equal(t, []string{"a", "b"}, e.Steps())
}

func TestDefaultEngine_StepOrder(t *testing.T) {
	e := NewDefaultEngine(zap.NewNop(), nil)
	assert.Equal(t, []string{
		StepBuildLookup,
		StepEnsureFallback,
		StepAssignCategoryIDs,
		StepClearLegacyCategories,
	}, e.Steps())
}

func TestEngine_Run(t *testing.T) {
	// Arrange
	ctx := context.Background()
	dir := memory.NewCategoryDirectory()
	metrics := observability.NewCollector("test")
	e := NewDefaultEngine(zap.NewNop(), metrics)
	doc := decode(t, `{
		"categories": ["Food", "Fun"],
		"transactions": [
			{"type":"expense","category":"food"},
			{"type":"expense","category":"Food"},
			{"type":"expense","category":""},
			{"type":"expense","category":"`+strings.Repeat("z", 60)+`"},
			{"type":"expense","categoryId":"0","category":"Fun"},
			{"type":"income","category":"Salary"},
			{"type":"debt_payment"}
		]
	}`)

	// Act
	res, err := e.Run(ctx, "acc", doc, dir)

	// Assert
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{StepAssignCategoryIDs, StepClearLegacyCategories}, res.Applied)
	assert.Equal(t, []any{}, doc["categories"])

	txs := doc.Transactions()
	food0, _ := txs[0].CategoryID()
	food1, _ := txs[1].CategoryID()
	other, _ := txs[2].CategoryID()
	long, _ := txs[3].CategoryID()
	fun, _ := txs[4].CategoryID()
	assert.Equal(t, food0, food1, "labels match case-insensitively")

	otherCat, err := dir.FindByName(ctx, "acc", "Other")
	require.NoError(t, err)
	assert.Equal(t, otherCat.ID(), other)

	longCat, err := dir.Get(ctx, "acc", long)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("z", 40), longCat.Name().String())

	funCat, err := dir.Get(ctx, "acc", fun)
	require.NoError(t, err)
	assert.Equal(t, "Fun", funCat.Name().String())

	_, hasID := txs[5].CategoryID()
	assert.False(t, hasID)
	assert.NotContains(t, map[string]any(txs[6]), "categoryId")

	list, err := dir.List(ctx, "acc")
	require.NoError(t, err)
	assert.Len(t, list, 4)
	assert.Len(t, res.Created, 4)
}

func TestEngine_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewCategoryDirectory()
	e := NewDefaultEngine(zap.NewNop(), nil)
	doc := decode(t, `{"categories":["A"],"transactions":[{"type":"expense","category":"A"}]}`)

	_, err := e.Run(ctx, "acc", doc, dir)
	require.NoError(t, err)
	before, err := doc.Encode()
	require.NoError(t, err)

	res, err := e.Run(ctx, "acc", doc, dir)
	require.NoError(t, err)
	after, err := doc.Encode()
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Empty(t, res.Created)
	assert.JSONEq(t, string(before), string(after))
}

func TestEngine_KeepsExistingCategoryIDs(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewCategoryDirectory()
	e := NewDefaultEngine(zap.NewNop(), nil)
	doc := decode(t, `{"categories":[],"transactions":[{"type":"expense","categoryId":42,"category":"Food"}]}`)

	res, err := e.Run(ctx, "acc", doc, dir)

	require.NoError(t, err)
	assert.False(t, res.Changed)
	id, _ := doc.Transactions()[0].CategoryID()
	assert.Equal(t, int64(42), id)
}

// racingDirectory reports a duplicate on the first create of each name, as if
// a concurrent request had inserted it first
type racingDirectory struct {
	*memory.CategoryDirectory
	raced map[string]bool
}

func (d *racingDirectory) Create(ctx context.Context, c *entities.Category) error {
	key := c.Name().Key()
	if !d.raced[key] {
		d.raced[key] = true
		twin := entities.ReconstructCategory(0, c.AccountID(), c.Name().String(), string(c.Kind()), c.SortOrder(), c.CreatedAt(), c.UpdatedAt())
		if err := d.CategoryDirectory.Create(ctx, twin); err != nil {
			return err
		}
		return ports.ErrDuplicateCategoryName
	}
	return d.CategoryDirectory.Create(ctx, c)
}

func TestEngine_CreateRaceReadsExistingRow(t *testing.T) {
	ctx := context.Background()
	dir := &racingDirectory{CategoryDirectory: memory.NewCategoryDirectory(), raced: map[string]bool{}}
	e := NewDefaultEngine(zap.NewNop(), nil)
	doc := decode(t, `{"transactions":[{"type":"expense","category":"Food"}]}`)

	res, err := e.Run(ctx, "acc", doc, dir)

	require.NoError(t, err)
	assert.True(t, res.Changed)
	food, err := dir.FindByName(ctx, "acc", "Food")
	require.NoError(t, err)
	id, _ := doc.Transactions()[0].CategoryID()
	assert.Equal(t, food.ID(), id)
}

type failingDirectory struct {
	*memory.CategoryDirectory
}

func (failingDirectory) List(context.Context, string) ([]*entities.Category, error) {
	return nil, errors.New("db down")
}

func TestEngine_AddsEmptyCategoriesListOnce(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewCategoryDirectory()
	e := NewDefaultEngine(zap.NewNop(), nil)
	doc := decode(t, `{"transactions":[{"type":"income","amount":5}]}`)

	first, err := e.Run(ctx, "acc", doc, dir)
	require.NoError(t, err)
	second, err := e.Run(ctx, "acc", doc, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{StepClearLegacyCategories}, first.Applied)
	assert.Equal(t, []any{}, doc["categories"])
	assert.False(t, second.Changed)
}

func TestEngine_EmptyDocumentIsUntouched(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewCategoryDirectory()
	e := NewDefaultEngine(zap.NewNop(), nil)
	doc := aggregates.Document{}

	res, err := e.Run(ctx, "acc", doc, dir)

	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.NotContains(t, map[string]any(doc), "categories")
	_, err = dir.FindByName(ctx, "acc", "Other")
	assert.NoError(t, err)
}

func TestEngine_StepErrorStopsRun(t *testing.T) {
	e := NewDefaultEngine(zap.NewNop(), nil)

	_, err := e.Run(context.Background(), "acc", aggregates.Document{}, failingDirectory{memory.NewCategoryDirectory()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), StepBuildLookup)
}
