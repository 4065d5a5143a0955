package finance

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"finsync/domain/core/aggregates"
)

// Document keys the client owns
const (
	keyVersion       = "version"
	keyProfile       = "profile"
	keyNeedsTemplate = "needsTemplate"
	keyLegacyNeeds   = "needs"
	keyMonthNeeds    = "monthNeeds"
	keyBuckets       = "buckets"
	keyDebts         = "debts"
	keyTransactions  = aggregates.KeyTransactions
	keyCategories    = aggregates.KeyLegacyCategories
	keyCreatedAt     = "createdAt"
	keyUpdatedAt     = "updatedAt"
)

const dateLayout = "2006-01-02"

// defaultCategoryLabels is the inline list older clients shipped with
var defaultCategoryLabels = []string{
	"Needs", "Food", "Transport", "Fun", "Health", "GF",
	"Tools", "Subscriptions", "Debt Payment", "Emergency",
	"Investment", "Long-term", "Other",
}

// legacyTemplateNames identify a personal needs template that is replaced by
// the neutral placeholders on load.
var legacyTemplateNames = []string{"wifi", "orange", "eau/elec", "icloud", "hosting", "chatgpt", "master", "food"}

// NewID returns "<prefix>_<random hex>_<unix millis hex>"
func NewID(prefix string) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:]) + "_" + strconv.FormatInt(time.Now().UnixMilli(), 16)
}

// DefaultDocument is the state of a brand new ledger
func DefaultDocument(now time.Time, newID func(string) string) aggregates.Document {
	today := now.Format(dateLayout)

	need := func(name string, amount int) any {
		return map[string]any{
			"id": newID("need"), "name": name, "amount": json.Number(strconv.Itoa(amount)),
			"startMonth": "", "endMonth": "",
		}
	}
	bucket := func(name string) any {
		return map[string]any{
			"id": newID("bucket"), "name": name, "kind": "savings",
			"target": json.Number("0"), "current": json.Number("0"),
		}
	}

	categories := make([]any, 0, len(defaultCategoryLabels))
	for _, c := range defaultCategoryLabels {
		categories = append(categories, c)
	}

	return aggregates.Document{
		keyVersion: json.Number("1"),
		keyProfile: map[string]any{
			"name":              "",
			"currency":          "MAD",
			"startingBalance":   json.Number("0"),
			"theme":             "dark",
			"hasCompletedSetup": false,
		},
		keyNeedsTemplate: []any{
			need("Rent", 2500),
			need("Utilities", 250),
			need("Internet", 200),
			need("Subscription", 100),
			need("Groceries", 1200),
			need("Transport", 300),
		},
		keyMonthNeeds: map[string]any{},
		keyCategories: categories,
		keyBuckets: []any{
			bucket("Emergency"),
			bucket("Long-term"),
			bucket("Investments"),
			bucket("GF"),
			bucket("Health"),
			bucket("Fun"),
		},
		keyDebts:        []any{},
		keyTransactions: []any{},
		keyCreatedAt:    today,
		keyUpdatedAt:    today,
	}
}

// Normalize merges doc over the defaults so every known collection has the
// right shape. A nil doc yields the defaults. doc itself is not modified.
func Normalize(doc aggregates.Document, now time.Time, newID func(string) string) aggregates.Document {
	d := DefaultDocument(now, newID)
	if doc == nil {
		return d
	}

	out := make(aggregates.Document, len(d)+len(doc))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range doc {
		out[k] = v
	}

	profile := copyObject(d[keyProfile])
	if p, ok := doc[keyProfile].(map[string]any); ok {
		for k, v := range p {
			profile[k] = v
		}
	}
	out[keyProfile] = profile

	template, ok := doc[keyNeedsTemplate].([]any)
	if !ok {
		if legacy, isList := doc[keyLegacyNeeds].([]any); isList {
			template = legacy
		} else {
			template = d[keyNeedsTemplate].([]any)
		}
	}
	if looksLikeLegacyTemplate(template) {
		template = d[keyNeedsTemplate].([]any)
	}
	out[keyNeedsTemplate] = template

	if mn, ok := doc[keyMonthNeeds].(map[string]any); ok {
		out[keyMonthNeeds] = normalizeMonthNeeds(mn)
	} else {
		out[keyMonthNeeds] = map[string]any{}
	}

	for _, key := range []string{keyCategories, keyBuckets, keyDebts, keyTransactions} {
		if _, isList := doc[key].([]any); !isList {
			out[key] = d[key]
		}
	}
	return out
}

func looksLikeLegacyTemplate(template []any) bool {
	names := make(map[string]struct{})
	for _, item := range template {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			names[name] = struct{}{}
		}
	}
	if len(names) != len(legacyTemplateNames) {
		return false
	}
	for _, n := range legacyTemplateNames {
		if _, ok := names[n]; !ok {
			return false
		}
	}
	return true
}

func normalizeMonthNeeds(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for mk, items := range in {
		list, ok := items.([]any)
		if !ok {
			out[mk] = []any{}
			continue
		}
		normalized := make([]any, 0, len(list))
		for _, item := range list {
			normalized = append(normalized, normalizeNeedItem(item))
		}
		out[mk] = normalized
	}
	return out
}

// normalizeNeedItem coerces paid to a bool and paidAt to a string or nil
func normalizeNeedItem(item any) any {
	obj, ok := item.(map[string]any)
	if !ok {
		return item
	}
	out := copyObject(obj)
	out["paid"] = truthy(obj["paid"])
	switch v := obj["paidAt"].(type) {
	case nil:
		out["paidAt"] = nil
	case string:
		if v == "" {
			out["paidAt"] = nil
		} else {
			out["paidAt"] = v
		}
	case json.Number:
		out["paidAt"] = v.String()
	case bool:
		if v {
			out["paidAt"] = "true"
		} else {
			out["paidAt"] = nil
		}
	default:
		out["paidAt"] = nil
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func copyObject(v any) map[string]any {
	src, _ := v.(map[string]any)
	out := make(map[string]any, len(src))
	for k, val := range src {
		out[k] = val
	}
	return out
}
