package valueobjects

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxCategoryNameLength is the rune limit on category names
const MaxCategoryNameLength = 40

// FallbackCategoryName names the per-account category that is never deletable
const FallbackCategoryName = "Other"

var ErrEmptyCategoryName = errors.New("category name cannot be empty")

// CategoryName is a normalized, length-checked category name
type CategoryName struct {
	value string
}

// NormalizeName trims name and collapses internal whitespace runs to one space
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NewCategoryName normalizes and validates a user supplied name
func NewCategoryName(raw string) (CategoryName, error) {
	name := NormalizeName(raw)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return CategoryName{}, ErrEmptyCategoryName
	}
	if n > MaxCategoryNameLength {
		return CategoryName{}, fmt.Errorf("category name must be 1..%d characters", MaxCategoryNameLength)
	}
	return CategoryName{value: name}, nil
}

// LabelFromLegacy derives a category name from an inline transaction label.
// Over-long labels are truncated and empty ones become the fallback name.
func LabelFromLegacy(raw string) CategoryName {
	name := NormalizeName(raw)
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxCategoryNameLength]))
	}
	if name == "" {
		name = FallbackCategoryName
	}
	return CategoryName{value: name}
}

func (n CategoryName) String() string { return n.value }

// Key is the case-insensitive identity used for uniqueness
func (n CategoryName) Key() string { return strings.ToLower(n.value) }

// IsFallback reports whether this is the protected fallback category
func (n CategoryName) IsFallback() bool {
	return strings.EqualFold(n.value, FallbackCategoryName)
}

// Equals compares case-insensitively
func (n CategoryName) Equals(other CategoryName) bool {
	return n.Key() == other.Key()
}
