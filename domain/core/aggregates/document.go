package aggregates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Known document keys
const (
	KeyTransactions     = "transactions"
	KeyLegacyCategories = "categories"

	TxFieldType       = "type"
	TxFieldCategory   = "category"
	TxFieldCategoryID = "categoryId"

	TxTypeExpense = "expense"
)

var (
	ErrDocumentNotObject   = errors.New("document must be a JSON object")
	ErrUnencodableDocument = errors.New("document cannot be encoded as JSON")
)

// Document is the client-owned JSON tree. Numbers decode as json.Number so
// amounts and ids survive a round trip unchanged.
type Document map[string]any

// DecodeDocument parses raw JSON into a Document
func DecodeDocument(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrDocumentNotObject
	}
	return Document(obj), nil
}

// DocumentFromValue accepts an already decoded value and checks it is an object
func DocumentFromValue(v any) (Document, error) {
	switch t := v.(type) {
	case Document:
		return t, nil
	case map[string]any:
		return Document(t), nil
	default:
		return nil, ErrDocumentNotObject
	}
}

// Encode serializes the document
func (d Document) Encode() ([]byte, error) {
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodableDocument, err)
	}
	return raw, nil
}

// Clone returns a deep copy
func (d Document) Clone() (Document, error) {
	raw, err := d.Encode()
	if err != nil {
		return nil, err
	}
	return DecodeDocument(raw)
}

// Transactions returns the transaction objects. Non-object entries are skipped;
// the returned maps alias the document.
func (d Document) Transactions() []Transaction {
	list, ok := d[KeyTransactions].([]any)
	if !ok {
		return nil
	}
	out := make([]Transaction, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Transaction(m))
		}
	}
	return out
}

// HasLegacyCategories reports whether the deprecated inline list still needs
// clearing. A document holding transactions but no list at all needs it too,
// so every migrated ledger carries an explicit empty list.
func (d Document) HasLegacyCategories() bool {
	v, ok := d[KeyLegacyCategories]
	if !ok {
		return len(d.Transactions()) > 0
	}
	list, isList := v.([]any)
	return !isList || len(list) > 0
}

// ClearLegacyCategories empties the deprecated inline list. It reports
// whether anything changed.
func (d Document) ClearLegacyCategories() bool {
	if !d.HasLegacyCategories() {
		return false
	}
	d[KeyLegacyCategories] = []any{}
	return true
}

// WithClearedLegacyCategories returns a shallow copy whose inline list is empty
func (d Document) WithClearedLegacyCategories() Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[KeyLegacyCategories] = []any{}
	return out
}

// Transaction is one ledger entry inside a Document
type Transaction map[string]any

func (t Transaction) Type() string {
	s, _ := t[TxFieldType].(string)
	return s
}

func (t Transaction) IsExpense() bool {
	return t.Type() == TxTypeExpense
}

// LegacyLabel is the inline category string older clients stored
func (t Transaction) LegacyLabel() string {
	s, _ := t[TxFieldCategory].(string)
	return s
}

// CategoryID returns the referenced category when it is a positive integer
func (t Transaction) CategoryID() (int64, bool) {
	id, ok := ParseCategoryID(t[TxFieldCategoryID])
	return id, ok && id > 0
}

func (t Transaction) SetCategoryID(id int64) {
	t[TxFieldCategoryID] = json.Number(strconv.FormatInt(id, 10))
}

// ParseCategoryID accepts JSON numbers, Go numbers and numeric strings
func ParseCategoryID(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return floatToID(f, err == nil)
	case float64:
		return floatToID(n, true)
	case float32:
		return floatToID(float64(n), true)
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return floatToID(f, err == nil)
	default:
		return 0, false
	}
}

func floatToID(f float64, ok bool) (int64, bool) {
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
