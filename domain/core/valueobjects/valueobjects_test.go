package valueobjects

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCategoryName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "trims and collapses", input: "  Eating \t  out ", want: "Eating out"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "exactly forty", input: strings.Repeat("a", 40), want: strings.Repeat("a", 40)},
		{name: "too long", input: strings.Repeat("a", 41), wantErr: true},
		{name: "counts runes", input: strings.Repeat("é", 40), want: strings.Repeat("é", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCategoryName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestLabelFromLegacy(t *testing.T) {
	assert.Equal(t, "Other", LabelFromLegacy("").String())
	assert.Equal(t, "Other", LabelFromLegacy("  \n ").String())
	assert.Equal(t, "Food", LabelFromLegacy(" Food ").String())
	assert.Equal(t, strings.Repeat("x", 40), LabelFromLegacy(strings.Repeat("x", 55)).String())
	assert.Equal(t, "a", LabelFromLegacy("a"+strings.Repeat(" ", 39)+"b").String()[:1])
}

func TestCategoryName_KeyAndFallback(t *testing.T) {
	a, _ := NewCategoryName("FOOD")
	b, _ := NewCategoryName("food")
	assert.True(t, a.Equals(b))
	assert.Equal(t, "food", a.Key())

	other, _ := NewCategoryName("other")
	assert.True(t, other.IsFallback())
	assert.False(t, a.IsFallback())
}

func TestParseCategoryKind(t *testing.T) {
	assert.Equal(t, CategoryKindBucket, ParseCategoryKind(" Bucket "))
	assert.Equal(t, CategoryKindSystem, ParseCategoryKind("system"))
	assert.Equal(t, CategoryKindExpense, ParseCategoryKind("groceries"))
	assert.Equal(t, CategoryKindExpense, ParseCategoryKind(""))
}

func TestNewEmail(t *testing.T) {
	e, err := NewEmail("  Someone@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", e.String())

	_, err = NewEmail("not an email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = NewEmail("Name <a@b.co>")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}
