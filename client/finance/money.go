package finance

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount reads a loosely typed amount. Anything unparseable counts as zero.
func Amount(v any) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case decimal.Decimal:
		return n
	}
	return decimal.Zero
}

// amountValue is how amounts are written into the document
func amountValue(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// MonthKey returns "YYYY-MM" for a "YYYY-MM-DD" date. Empty or malformed
// dates fall back to now.
func MonthKey(date string, now time.Time) string {
	if t, err := time.Parse(dateLayout, strings.TrimSpace(date)); err == nil {
		return t.Format("2006-01")
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(date)); err == nil {
		return t.Format("2006-01")
	}
	return now.Format("2006-01")
}

// IsActiveInMonth applies a needs template item's optional start/end months
func IsActiveInMonth(item map[string]any, monthKey string) bool {
	start, _ := item["startMonth"].(string)
	end, _ := item["endMonth"].(string)
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start != "" && monthKey < start {
		return false
	}
	if end != "" && monthKey > end {
		return false
	}
	return true
}

// FormatMoney renders an amount with two decimals and the currency code
func FormatMoney(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "MAD"
	}
	return d.StringFixed(2) + " " + currency
}
