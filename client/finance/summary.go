package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"finsync/domain/core/aggregates"
)

// Summary is the computed view of one month plus all-time balances
type Summary struct {
	Currency           string
	MonthKey           string
	Income             decimal.Decimal
	Spent              decimal.Decimal
	BucketAdds         decimal.Decimal
	DebtPayments       decimal.Decimal
	NeedsTotal         decimal.Decimal
	NeedsConfigured    bool
	RemainingThisMonth decimal.Decimal
	DebtRemaining      decimal.Decimal
	BucketTotals       map[string]decimal.Decimal
	TotalSaved         decimal.Decimal
	CashBalance        decimal.Decimal
	NetPosition        decimal.Decimal
}

// Summarize computes the summary for monthKey ("YYYY-MM"); empty means the
// month of now. Transactions without a date count in the requested month.
func Summarize(doc aggregates.Document, monthKey string, now time.Time) Summary {
	if monthKey == "" {
		monthKey = now.Format("2006-01")
	}
	profile, _ := doc[keyProfile].(map[string]any)
	currency, _ := profile["currency"].(string)
	if currency == "" {
		currency = "MAD"
	}

	sum := Summary{
		Currency:     currency,
		MonthKey:     monthKey,
		BucketTotals: map[string]decimal.Decimal{},
	}

	buckets, _ := doc[keyBuckets].([]any)
	for _, raw := range buckets {
		if b, ok := raw.(map[string]any); ok {
			if id, ok := b["id"].(string); ok {
				sum.BucketTotals[id] = decimal.Zero
			}
		}
	}

	var allIncome, allExpense, allBucket, allDebt decimal.Decimal
	for _, tx := range doc.Transactions() {
		amount := Amount(tx["amount"])
		date, _ := tx["date"].(string)
		inMonth := date == "" || MonthKey(date, now) == monthKey

		switch tx.Type() {
		case TxIncome:
			allIncome = allIncome.Add(amount)
			if inMonth {
				sum.Income = sum.Income.Add(amount)
			}
		case TxExpense:
			allExpense = allExpense.Add(amount)
			if inMonth {
				sum.Spent = sum.Spent.Add(amount)
			}
		case TxBucketAdd:
			allBucket = allBucket.Add(amount)
			if inMonth {
				sum.BucketAdds = sum.BucketAdds.Add(amount)
			}
			if id, ok := tx["bucketId"].(string); ok {
				if total, tracked := sum.BucketTotals[id]; tracked {
					sum.BucketTotals[id] = total.Add(amount)
				}
			}
		case TxDebtPayment:
			allDebt = allDebt.Add(amount)
			if inMonth {
				sum.DebtPayments = sum.DebtPayments.Add(amount)
			}
		}
	}

	months, _ := doc[keyMonthNeeds].(map[string]any)
	if items, ok := months[monthKey].([]any); ok {
		sum.NeedsConfigured = true
		for _, raw := range items {
			if n, ok := raw.(map[string]any); ok {
				sum.NeedsTotal = sum.NeedsTotal.Add(Amount(n["amount"]))
			}
		}
	}

	debtStart := decimal.Zero
	debts, _ := doc[keyDebts].([]any)
	for _, raw := range debts {
		if d, ok := raw.(map[string]any); ok {
			debtStart = debtStart.Add(Amount(d["balance"]))
		}
	}
	sum.DebtRemaining = decimal.Max(decimal.Zero, debtStart.Sub(allDebt))

	for _, total := range sum.BucketTotals {
		sum.TotalSaved = sum.TotalSaved.Add(total)
	}

	sum.RemainingThisMonth = sum.Income.Sub(sum.Spent).Sub(sum.BucketAdds).Sub(sum.DebtPayments)
	sum.CashBalance = Amount(profile["startingBalance"]).
		Add(allIncome).Sub(allExpense).Sub(allBucket).Sub(allDebt)
	sum.NetPosition = sum.CashBalance.Add(sum.TotalSaved).Sub(sum.DebtRemaining)
	return sum
}

// Summary computes the summary of the current document
func (s *State) Summary(monthKey string) Summary {
	return Summarize(s.Document(), monthKey, s.now())
}
