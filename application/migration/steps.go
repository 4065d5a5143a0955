package migration

import (
	"context"

	"finsync/domain/core/valueobjects"
)

const (
	StepBuildLookup           = "build_category_lookup"
	StepEnsureFallback        = "ensure_other_category"
	StepAssignCategoryIDs     = "assign_category_ids"
	StepClearLegacyCategories = "clear_legacy_categories"
)

// DefaultSteps moves inline category labels to category references
func DefaultSteps() []Step {
	return []Step{
		{
			Name:        StepBuildLookup,
			Description: "index the account's categories by name",
			Apply: func(ctx context.Context, mc *Context) (bool, error) {
				return false, mc.LoadLookup(ctx)
			},
		},
		{
			Name:        StepEnsureFallback,
			Description: "create the Other category when missing",
			Apply: func(ctx context.Context, mc *Context) (bool, error) {
				_, err := mc.EnsureCategory(ctx, valueobjects.LabelFromLegacy(valueobjects.FallbackCategoryName))
				return false, err
			},
		},
		{
			Name:        StepAssignCategoryIDs,
			Description: "give expense transactions without a category id one derived from their label",
			Apply:       assignCategoryIDs,
		},
		{
			Name:        StepClearLegacyCategories,
			Description: "empty the deprecated inline categories list",
			Apply: func(_ context.Context, mc *Context) (bool, error) {
				return mc.Document.ClearLegacyCategories(), nil
			},
		},
	}
}

func assignCategoryIDs(ctx context.Context, mc *Context) (bool, error) {
	changed := false
	for _, tx := range mc.Document.Transactions() {
		if !tx.IsExpense() {
			continue
		}
		if _, ok := tx.CategoryID(); ok {
			continue
		}

		id, err := mc.EnsureCategory(ctx, valueobjects.LabelFromLegacy(tx.LegacyLabel()))
		if err != nil {
			return changed, err
		}
		tx.SetCategoryID(id)
		changed = true
	}
	return changed, nil
}
