package ports

import (
	"context"
	"errors"
	"fmt"

	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/domain/events"
)

var (
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrCategoryNotFound      = errors.New("category not found")
	ErrDuplicateCategoryName = errors.New("category name already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrLockNotAcquired       = errors.New("lock not acquired")
)

// VersionConflictError is returned when a compare-and-swap write finds a
// different version than the writer expected
type VersionConflictError struct {
	ServerVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: server is at version %d", e.ServerVersion)
}

// AsVersionConflict unwraps err into a VersionConflictError
func AsVersionConflict(err error) (*VersionConflictError, bool) {
	var vc *VersionConflictError
	if errors.As(err, &vc) {
		return vc, true
	}
	return nil, false
}

// SnapshotStore persists one document and version per account.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type SnapshotStore interface {
	// Read returns the stored snapshot or ErrSnapshotNotFound
	Read(ctx context.Context, accountID string) (*aggregates.Snapshot, error)

	// Write replaces the document if the stored version equals expectedVersion.
	// An expectedVersion of 0 creates the snapshot only if none exists.
	// A failed comparison returns *VersionConflictError.
	Write(ctx context.Context, accountID string, doc aggregates.Document, expectedVersion int64) (aggregates.WriteResult, error)
}

// CategoryDirectory stores the server-owned categories of each account
type CategoryDirectory interface {
	// List returns categories ordered by sort order, then name
	List(ctx context.Context, accountID string) ([]*entities.Category, error)

	// Get returns one category or ErrCategoryNotFound
	Get(ctx context.Context, accountID string, id int64) (*entities.Category, error)

	// FindByName matches case-insensitively; ErrCategoryNotFound when absent
	FindByName(ctx context.Context, accountID string, name string) (*entities.Category, error)

	// Create stores a new category and assigns its ID.
	// A name already used by the account returns ErrDuplicateCategoryName.
	Create(ctx context.Context, category *entities.Category) error

	// Update persists name, kind and sort order changes
	Update(ctx context.Context, category *entities.Category) error

	// Delete removes a category or returns ErrCategoryNotFound
	Delete(ctx context.Context, accountID string, id int64) error
}

// AccountDirectory stores accounts
type AccountDirectory interface {
	Create(ctx context.Context, account *entities.Account) error
	GetByID(ctx context.Context, id string) (*entities.Account, error)
	GetByEmail(ctx context.Context, email string) (*entities.Account, error)
}

// Lock is a held account-scoped lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes work on one resource across requests
type Locker interface {
	// Acquire blocks until the lock is held, the wait limit passes or ctx ends.
	// Failing to get the lock in time returns ErrLockNotAcquired.
	Acquire(ctx context.Context, resource string) (Lock, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Pinger is implemented by backends that can report readiness
type Pinger interface {
	Ping(ctx context.Context) error
}
