package entities

import (
	"time"

	"finsync/domain/core/valueobjects"
	"finsync/domain/events"
	pkgerrors "finsync/pkg/errors"
)

const (
	// DefaultSortOrder is used for categories created without an explicit order
	DefaultSortOrder = 0
	// FallbackSortOrder keeps the fallback category at the end of listings
	FallbackSortOrder = 9999
)

// Category is an account-scoped spending category. IDs are positive and
// assigned by the directory that stores the category.
type Category struct {
	id        int64
	accountID string
	name      valueobjects.CategoryName
	kind      valueobjects.CategoryKind
	sortOrder int
	createdAt time.Time
	updatedAt time.Time

	events []events.DomainEvent
}

// NewCategory creates an unsaved category
func NewCategory(accountID string, name valueobjects.CategoryName, kind valueobjects.CategoryKind, sortOrder int) (*Category, error) {
	if accountID == "" {
		return nil, pkgerrors.NewValidationError("accountID cannot be empty")
	}
	if name.String() == "" {
		return nil, pkgerrors.NewValidationError("category name cannot be empty")
	}
	now := time.Now().UTC()
	return &Category{
		accountID: accountID,
		name:      name,
		kind:      kind,
		sortOrder: sortOrder,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// NewFallbackCategory creates the protected "Other" category
func NewFallbackCategory(accountID string) (*Category, error) {
	name, err := valueobjects.NewCategoryName(valueobjects.FallbackCategoryName)
	if err != nil {
		return nil, err
	}
	return NewCategory(accountID, name, valueobjects.CategoryKindExpense, FallbackSortOrder)
}

// ReconstructCategory rebuilds a category from stored fields
func ReconstructCategory(
	id int64,
	accountID string,
	name string,
	kind string,
	sortOrder int,
	createdAt, updatedAt time.Time,
) *Category {
	return &Category{
		id:        id,
		accountID: accountID,
		name:      valueobjects.LabelFromLegacy(name),
		kind:      valueobjects.ParseCategoryKind(kind),
		sortOrder: sortOrder,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (c *Category) ID() int64                       { return c.id }
func (c *Category) AccountID() string               { return c.accountID }
func (c *Category) Name() valueobjects.CategoryName { return c.name }
func (c *Category) Kind() valueobjects.CategoryKind { return c.kind }
func (c *Category) SortOrder() int                  { return c.sortOrder }
func (c *Category) CreatedAt() time.Time            { return c.createdAt }
func (c *Category) UpdatedAt() time.Time            { return c.updatedAt }

// IsFallback reports whether this is the protected fallback category
func (c *Category) IsFallback() bool {
	return c.name.IsFallback()
}

// AssignID records the identifier chosen by the directory and raises CategoryCreated
func (c *Category) AssignID(id int64) {
	c.id = id
	c.addEvent(events.NewCategoryCreated(c.accountID, id, c.name.String(), string(c.kind), c.createdAt))
}

// Rename changes the name. The fallback category cannot be renamed.
func (c *Category) Rename(name valueobjects.CategoryName) error {
	if c.IsFallback() {
		return pkgerrors.NewForbiddenError("the Other category cannot be renamed").
			WithCode(pkgerrors.CodeProtectedCategory)
	}
	if c.name.String() == name.String() {
		return nil
	}
	old := c.name
	c.name = name
	c.updatedAt = time.Now().UTC()
	c.addEvent(events.NewCategoryRenamed(c.accountID, c.id, old.String(), name.String(), c.updatedAt))
	return nil
}

func (c *Category) SetKind(kind valueobjects.CategoryKind) {
	c.kind = kind
	c.updatedAt = time.Now().UTC()
}

func (c *Category) SetSortOrder(order int) {
	c.sortOrder = order
	c.updatedAt = time.Now().UTC()
}

// CanDelete fails for the fallback category
func (c *Category) CanDelete() error {
	if c.IsFallback() {
		return pkgerrors.NewForbiddenError("the Other category cannot be deleted").
			WithCode(pkgerrors.CodeProtectedCategory)
	}
	return nil
}

// GetUncommittedEvents returns events raised since the last MarkEventsAsCommitted
func (c *Category) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

func (c *Category) MarkEventsAsCommitted() {
	c.events = nil
}

func (c *Category) addEvent(e events.DomainEvent) {
	c.events = append(c.events, e)
}
