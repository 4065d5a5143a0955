// Package finance holds the client's ledger document and the operations that
// change it. Every operation replaces the document with a new value; a
// published document is never mutated, so listeners may keep it.
package finance

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finsync/domain/core/aggregates"
)

// Transaction kinds
const (
	TxIncome      = "income"
	TxExpense     = aggregates.TxTypeExpense
	TxDebtPayment = "debt_payment"
	TxBucketAdd   = "bucket_add"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrNotFound          = errors.New("item not found")
)

// ChangeFunc receives the document after every mutation
type ChangeFunc func(doc aggregates.Document)

// Option customizes a State
type Option func(*State)

// WithClock fixes the time source
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithIDGenerator replaces NewID
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(s *State) { s.newID = gen }
}

// State is safe for concurrent use
type State struct {
	mu        sync.RWMutex
	doc       aggregates.Document
	listeners []ChangeFunc

	now   func() time.Time
	newID func(string) string
}

// NewState starts from doc normalized over the defaults; nil starts empty
func NewState(doc aggregates.Document, opts ...Option) *State {
	s := &State{now: time.Now, newID: NewID}
	for _, opt := range opts {
		opt(s)
	}
	s.doc = Normalize(doc, s.now(), s.newID)
	return s
}

// OnChange registers fn for every later mutation. Reset does not notify.
func (s *State) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Document returns the current document. Callers must not modify it.
func (s *State) Document() aggregates.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Reset adopts doc (normalized) without notifying listeners. It is how a
// pulled cloud document replaces local state.
func (s *State) Reset(doc aggregates.Document) {
	normalized := Normalize(doc, s.now(), s.newID)
	s.mu.Lock()
	s.doc = normalized
	s.mu.Unlock()
}

// apply builds the next document from a shallow copy of the current one
func (s *State) apply(fn func(next aggregates.Document) error) error {
	s.mu.Lock()
	next := make(aggregates.Document, len(s.doc)+1)
	for k, v := range s.doc {
		next[k] = v
	}
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next[keyUpdatedAt] = s.now().Format(dateLayout)
	s.doc = next
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}

// UpdateProfile merges patch into the profile
func (s *State) UpdateProfile(patch map[string]any) error {
	return s.apply(func(next aggregates.Document) error {
		profile := copyObject(next[keyProfile])
		for k, v := range patch {
			profile[k] = v
		}
		next[keyProfile] = profile
		return nil
	})
}

// IncomeInput describes an income entry
type IncomeInput struct {
	Date    string
	Amount  decimal.Decimal
	Note    string
	Payment string
}

// ExpenseInput describes an expense. CategoryID 0 leaves the reference null;
// CategoryName is the display label kept for older clients.
type ExpenseInput struct {
	Date         string
	Amount       decimal.Decimal
	CategoryID   int64
	CategoryName string
	Note         string
	Payment      string
	NeedWant     string
}

// BucketContributionInput moves money into a savings bucket
type BucketContributionInput struct {
	Date     string
	Amount   decimal.Decimal
	BucketID string
	Note     string
	Payment  string
}

// DebtPaymentInput pays down a debt
type DebtPaymentInput struct {
	Date    string
	Amount  decimal.Decimal
	DebtID  string
	Note    string
	Payment string
}

func (s *State) AddIncome(in IncomeInput) (string, error) {
	return s.addTransaction(in.Amount, map[string]any{
		"type": TxIncome, "date": s.dateOrToday(in.Date), "category": "Income",
		"payment": in.Payment, "note": in.Note,
	})
}

func (s *State) AddExpense(in ExpenseInput) (string, error) {
	label := in.CategoryName
	if label == "" {
		label = "Other"
	}
	needWant := in.NeedWant
	if needWant == "" {
		needWant = "Need"
	}
	tx := map[string]any{
		"type": TxExpense, "date": s.dateOrToday(in.Date), "categoryId": nil,
		"category": label, "payment": in.Payment, "note": in.Note, "needWant": needWant,
	}
	if in.CategoryID > 0 {
		aggregates.Transaction(tx).SetCategoryID(in.CategoryID)
	}
	return s.addTransaction(in.Amount, tx)
}

func (s *State) AddBucketContribution(in BucketContributionInput) (string, error) {
	return s.addTransaction(in.Amount, map[string]any{
		"type": TxBucketAdd, "date": s.dateOrToday(in.Date), "bucketId": in.BucketID,
		"category": "Bucket", "payment": in.Payment, "note": in.Note,
	})
}

func (s *State) AddDebtPayment(in DebtPaymentInput) (string, error) {
	return s.addTransaction(in.Amount, map[string]any{
		"type": TxDebtPayment, "date": s.dateOrToday(in.Date), "debtId": in.DebtID,
		"category": "Debt Payment", "payment": in.Payment, "note": in.Note,
	})
}

func (s *State) addTransaction(amount decimal.Decimal, tx map[string]any) (string, error) {
	if !amount.IsPositive() {
		return "", ErrNonPositiveAmount
	}
	id := s.newID("tx")
	tx["id"] = id
	tx["amount"] = amountValue(amount)
	err := s.apply(func(next aggregates.Document) error {
		next[keyTransactions] = appendItem(next[keyTransactions], tx)
		return nil
	})
	return id, err
}

func (s *State) UpdateTransaction(id string, patch map[string]any) error {
	return s.updateIn(keyTransactions, id, patch)
}

func (s *State) DeleteTransaction(id string) error {
	return s.deleteIn(keyTransactions, id)
}

// AddBucket adds a savings bucket and returns its id
func (s *State) AddBucket(item map[string]any) (string, error) {
	return s.addTo(keyBuckets, "bucket", item)
}

func (s *State) UpdateBucket(id string, patch map[string]any) error {
	return s.updateIn(keyBuckets, id, patch)
}

func (s *State) DeleteBucket(id string) error {
	return s.deleteIn(keyBuckets, id)
}

func (s *State) AddDebt(item map[string]any) (string, error) {
	return s.addTo(keyDebts, "debt", item)
}

func (s *State) UpdateDebt(id string, patch map[string]any) error {
	return s.updateIn(keyDebts, id, patch)
}

func (s *State) DeleteDebt(id string) error {
	return s.deleteIn(keyDebts, id)
}

// SetMonthNeeds replaces the needs of one month
func (s *State) SetMonthNeeds(monthKey string, items []map[string]any) error {
	list := make([]any, 0, len(items))
	for _, item := range items {
		list = append(list, normalizeNeedItem(copyObject(item)))
	}
	return s.apply(func(next aggregates.Document) error {
		months := copyObject(next[keyMonthNeeds])
		months[monthKey] = list
		next[keyMonthNeeds] = months
		return nil
	})
}

// CopyTemplateToMonth sets a month's needs from the template items active in it
func (s *State) CopyTemplateToMonth(monthKey string) error {
	template, _ := s.Document()[keyNeedsTemplate].([]any)
	items := make([]map[string]any, 0, len(template))
	for _, raw := range template {
		item, ok := raw.(map[string]any)
		if !ok || !IsActiveInMonth(item, monthKey) {
			continue
		}
		items = append(items, map[string]any{
			"id": s.newID("need"), "name": item["name"], "amount": item["amount"],
		})
	}
	return s.SetMonthNeeds(monthKey, items)
}

func (s *State) AddMonthNeed(monthKey string, item map[string]any) (string, error) {
	need := map[string]any{"id": s.newID("need")}
	for k, v := range item {
		need[k] = v
	}
	id, _ := need["id"].(string)
	err := s.apply(func(next aggregates.Document) error {
		months := copyObject(next[keyMonthNeeds])
		months[monthKey] = appendItem(months[monthKey], normalizeNeedItem(need))
		next[keyMonthNeeds] = months
		return nil
	})
	return id, err
}

func (s *State) UpdateMonthNeed(monthKey, id string, patch map[string]any) error {
	return s.apply(func(next aggregates.Document) error {
		months := copyObject(next[keyMonthNeeds])
		list, err := patchItem(months[monthKey], id, patch)
		if err != nil {
			return err
		}
		months[monthKey] = list
		next[keyMonthNeeds] = months
		return nil
	})
}

func (s *State) DeleteMonthNeed(monthKey, id string) error {
	return s.apply(func(next aggregates.Document) error {
		months := copyObject(next[keyMonthNeeds])
		list, err := removeItem(months[monthKey], id)
		if err != nil {
			return err
		}
		months[monthKey] = list
		next[keyMonthNeeds] = months
		return nil
	})
}

func (s *State) addTo(key, prefix string, item map[string]any) (string, error) {
	obj := map[string]any{"id": s.newID(prefix)}
	for k, v := range item {
		obj[k] = v
	}
	id, _ := obj["id"].(string)
	err := s.apply(func(next aggregates.Document) error {
		next[key] = appendItem(next[key], obj)
		return nil
	})
	return id, err
}

func (s *State) updateIn(key, id string, patch map[string]any) error {
	return s.apply(func(next aggregates.Document) error {
		list, err := patchItem(next[key], id, patch)
		if err != nil {
			return err
		}
		next[key] = list
		return nil
	})
}

func (s *State) deleteIn(key, id string) error {
	return s.apply(func(next aggregates.Document) error {
		list, err := removeItem(next[key], id)
		if err != nil {
			return err
		}
		next[key] = list
		return nil
	})
}

func (s *State) dateOrToday(date string) string {
	if date == "" {
		return s.now().Format(dateLayout)
	}
	return date
}

func appendItem(list any, item any) []any {
	old, _ := list.([]any)
	out := make([]any, 0, len(old)+1)
	out = append(out, old...)
	return append(out, item)
}

// patchItem returns a new list where the object with id has patch merged in
func patchItem(list any, id string, patch map[string]any) ([]any, error) {
	old, _ := list.([]any)
	out := make([]any, len(old))
	found := false
	for i, raw := range old {
		out[i] = raw
		obj, ok := raw.(map[string]any)
		if !ok || obj["id"] != id {
			continue
		}
		merged := copyObject(obj)
		for k, v := range patch {
			merged[k] = v
		}
		merged["id"] = id
		out[i] = merged
		found = true
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

func removeItem(list any, id string) ([]any, error) {
	old, _ := list.([]any)
	out := make([]any, 0, len(old))
	for _, raw := range old {
		if obj, ok := raw.(map[string]any); ok && obj["id"] == id {
			continue
		}
		out = append(out, raw)
	}
	if len(out) == len(old) {
		return nil, ErrNotFound
	}
	return out, nil
}
