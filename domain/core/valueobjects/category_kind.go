package valueobjects

import "strings"

// CategoryKind classifies what a category is used for
type CategoryKind string

const (
	CategoryKindExpense CategoryKind = "expense"
	CategoryKindBucket  CategoryKind = "bucket"
	CategoryKindDebt    CategoryKind = "debt"
	CategoryKindSystem  CategoryKind = "system"
)

// ParseCategoryKind lowercases raw and maps unknown values to expense
func ParseCategoryKind(raw string) CategoryKind {
	switch k := CategoryKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case CategoryKindExpense, CategoryKindBucket, CategoryKindDebt, CategoryKindSystem:
		return k
	default:
		return CategoryKindExpense
	}
}
