package finance

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsync/domain/core/aggregates"
)

var fixedNow = time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)

func newTestState(doc aggregates.Document) *State {
	n := 0
	return NewState(doc,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func(prefix string) string {
			n++
			return fmt.Sprintf("%s_%d", prefix, n)
		}),
	)
}

func TestNormalize_NilYieldsDefaults(t *testing.T) {
	doc := Normalize(nil, fixedNow, NewID)

	assert.Len(t, doc[keyNeedsTemplate], 6)
	assert.Len(t, doc[keyBuckets], 6)
	assert.Equal(t, "2025-05-14", doc[keyCreatedAt])
	profile := doc[keyProfile].(map[string]any)
	assert.Equal(t, "MAD", profile["currency"])
}

func TestNormalize_MergesAndCoerces(t *testing.T) {
	in := aggregates.Document{
		"profile":      map[string]any{"currency": "EUR"},
		"transactions": "not a list",
		"monthNeeds": map[string]any{
			"2025-05": []any{map[string]any{"id": "n1", "amount": json.Number("10"), "paid": json.Number("1")}},
			"2025-06": "junk",
		},
		"extra": true,
	}

	doc := Normalize(in, fixedNow, NewID)

	profile := doc[keyProfile].(map[string]any)
	assert.Equal(t, "EUR", profile["currency"])
	assert.Equal(t, "dark", profile["theme"])
	assert.Equal(t, []any{}, doc[keyTransactions])
	assert.Equal(t, true, doc["extra"])

	months := doc[keyMonthNeeds].(map[string]any)
	need := months["2025-05"].([]any)[0].(map[string]any)
	assert.Equal(t, true, need["paid"])
	assert.Nil(t, need["paidAt"])
	assert.Equal(t, []any{}, months["2025-06"])
	assert.Equal(t, "not a list", in["transactions"])
}

func TestNormalize_ReplacesLegacyTemplate(t *testing.T) {
	var legacy []any
	for _, n := range []string{"WiFi", "Orange", "Eau/Elec", "iCloud", "Hosting", "ChatGPT", "Master", "Food"} {
		legacy = append(legacy, map[string]any{"name": n})
	}

	doc := Normalize(aggregates.Document{"needs": legacy}, fixedNow, NewID)

	template := doc[keyNeedsTemplate].([]any)
	assert.Len(t, template, 6)
	assert.Equal(t, "Rent", template[0].(map[string]any)["name"])
}

func TestAddExpense_CategoryReferenceAndLabel(t *testing.T) {
	s := newTestState(nil)

	id, err := s.AddExpense(ExpenseInput{Date: "2025-05-01", Amount: decimal.RequireFromString("12.5"), CategoryID: 7, CategoryName: "Food"})

	require.NoError(t, err)
	txs := s.Document().Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, id, txs[0]["id"])
	catID, ok := txs[0].CategoryID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), catID)
	assert.Equal(t, "Food", txs[0].LegacyLabel())
	assert.Equal(t, json.Number("12.5"), txs[0]["amount"])
	assert.Equal(t, "Need", txs[0]["needWant"])
}

func TestAddExpense_DefaultsToOtherLabel(t *testing.T) {
	s := newTestState(nil)

	_, err := s.AddExpense(ExpenseInput{Amount: decimal.NewFromInt(3)})

	require.NoError(t, err)
	tx := s.Document().Transactions()[0]
	assert.Equal(t, "Other", tx.LegacyLabel())
	assert.Nil(t, tx["categoryId"])
	assert.Equal(t, "2025-05-14", tx["date"])
}

func TestAddTransaction_RejectsNonPositive(t *testing.T) {
	s := newTestState(nil)

	_, err := s.AddIncome(IncomeInput{Amount: decimal.Zero})

	assert.ErrorIs(t, err, ErrNonPositiveAmount)
	assert.Empty(t, s.Document().Transactions())
}

func TestMutations_NotifyWithNewDocument(t *testing.T) {
	s := newTestState(nil)
	before := s.Document()
	var seen []aggregates.Document
	s.OnChange(func(doc aggregates.Document) { seen = append(seen, doc) })

	id, err := s.AddIncome(IncomeInput{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTransaction(id, map[string]any{"note": "salary"}))
	require.NoError(t, s.DeleteTransaction(id))

	require.Len(t, seen, 3)
	assert.Len(t, seen[0].Transactions(), 1)
	assert.Equal(t, "salary", seen[1].Transactions()[0]["note"])
	assert.Equal(t, "", seen[0].Transactions()[0]["note"])
	assert.Empty(t, seen[2].Transactions())
	assert.Empty(t, before.Transactions())
}

func TestUpdateAndDelete_MissingID(t *testing.T) {
	s := newTestState(nil)

	assert.ErrorIs(t, s.UpdateBucket("nope", map[string]any{"name": "x"}), ErrNotFound)
	assert.ErrorIs(t, s.DeleteDebt("nope"), ErrNotFound)
}

func TestMonthNeeds_Lifecycle(t *testing.T) {
	s := newTestState(nil)

	id, err := s.AddMonthNeed("2025-05", map[string]any{"name": "Rent", "amount": json.Number("2500")})
	require.NoError(t, err)
	require.NoError(t, s.UpdateMonthNeed("2025-05", id, map[string]any{"paid": true}))

	items := s.Document()[keyMonthNeeds].(map[string]any)["2025-05"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, true, items[0].(map[string]any)["paid"])

	require.NoError(t, s.DeleteMonthNeed("2025-05", id))
	items = s.Document()[keyMonthNeeds].(map[string]any)["2025-05"].([]any)
	assert.Empty(t, items)
}

func TestCopyTemplateToMonth_RespectsRange(t *testing.T) {
	s := newTestState(aggregates.Document{
		"needsTemplate": []any{
			map[string]any{"name": "Rent", "amount": json.Number("100"), "startMonth": "", "endMonth": ""},
			map[string]any{"name": "Gym", "amount": json.Number("50"), "startMonth": "2025-06", "endMonth": ""},
			map[string]any{"name": "Loan", "amount": json.Number("70"), "startMonth": "", "endMonth": "2025-04"},
		},
	})

	require.NoError(t, s.CopyTemplateToMonth("2025-05"))

	items := s.Document()[keyMonthNeeds].(map[string]any)["2025-05"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Rent", items[0].(map[string]any)["name"])
	assert.Equal(t, false, items[0].(map[string]any)["paid"])
}

func TestSummary(t *testing.T) {
	s := newTestState(aggregates.Document{
		"profile": map[string]any{"startingBalance": json.Number("1000")},
		"buckets": []any{map[string]any{"id": "b1", "name": "Emergency"}},
		"debts":   []any{map[string]any{"id": "d1", "balance": json.Number("300")}},
		"monthNeeds": map[string]any{
			"2025-05": []any{map[string]any{"id": "n1", "amount": json.Number("40.10")}},
		},
	})
	_, _ = s.AddIncome(IncomeInput{Date: "2025-05-01", Amount: decimal.RequireFromString("500")})
	_, _ = s.AddIncome(IncomeInput{Date: "2025-04-01", Amount: decimal.RequireFromString("200")})
	_, _ = s.AddExpense(ExpenseInput{Date: "2025-05-02", Amount: decimal.RequireFromString("0.10")})
	_, _ = s.AddExpense(ExpenseInput{Date: "2025-05-03", Amount: decimal.RequireFromString("0.20")})
	_, _ = s.AddBucketContribution(BucketContributionInput{Date: "2025-05-04", Amount: decimal.NewFromInt(50), BucketID: "b1"})
	_, _ = s.AddBucketContribution(BucketContributionInput{Date: "2025-05-04", Amount: decimal.NewFromInt(5), BucketID: "gone"})
	_, _ = s.AddDebtPayment(DebtPaymentInput{Date: "2025-05-05", Amount: decimal.NewFromInt(100), DebtID: "d1"})

	sum := s.Summary("2025-05")

	assert.True(t, sum.Income.Equal(decimal.NewFromInt(500)))
	assert.True(t, sum.Spent.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, sum.BucketAdds.Equal(decimal.NewFromInt(55)))
	assert.True(t, sum.NeedsTotal.Equal(decimal.RequireFromString("40.1")))
	assert.True(t, sum.NeedsConfigured)
	assert.True(t, sum.RemainingThisMonth.Equal(decimal.RequireFromString("344.7")))
	assert.True(t, sum.DebtRemaining.Equal(decimal.NewFromInt(200)))
	assert.True(t, sum.TotalSaved.Equal(decimal.NewFromInt(50)))
	assert.True(t, sum.CashBalance.Equal(decimal.RequireFromString("1544.7")))
	assert.True(t, sum.NetPosition.Equal(decimal.RequireFromString("1394.7")))
	assert.Equal(t, "MAD", sum.Currency)
}

func TestMonthKeyAndFormat(t *testing.T) {
	assert.Equal(t, "2024-12", MonthKey("2024-12-31", fixedNow))
	assert.Equal(t, "2025-05", MonthKey("", fixedNow))
	assert.Equal(t, "12.30 EUR", FormatMoney(decimal.RequireFromString("12.3"), "EUR"))
	assert.True(t, Amount("abc").IsZero())
	assert.True(t, Amount(2.5).Equal(decimal.RequireFromString("2.5")))
}
