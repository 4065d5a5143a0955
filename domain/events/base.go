package events

import "time"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeSnapshotSaved    = "snapshot.saved"
	TypeSnapshotMigrated = "snapshot.migrated"
	TypeCategoryCreated  = "category.created"
	TypeCategoryRenamed  = "category.renamed"
	TypeCategoryDeleted  = "category.deleted"
	TypeAccountCreated   = "account.created"
)

// Snapshot Events

// SnapshotSaved is raised when a client push is accepted
type SnapshotSaved struct {
	BaseEvent
	AccountID string `json:"account_id"`
}

func NewSnapshotSaved(accountID string, version int64, at time.Time) SnapshotSaved {
	return SnapshotSaved{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeSnapshotSaved,
			Timestamp:   at,
			Version:     int(version),
		},
		AccountID: accountID,
	}
}

// SnapshotMigrated is raised when a pull rewrote the stored document
type SnapshotMigrated struct {
	BaseEvent
	AccountID string   `json:"account_id"`
	Steps     []string `json:"steps"`
}

func NewSnapshotMigrated(accountID string, version int64, steps []string, at time.Time) SnapshotMigrated {
	return SnapshotMigrated{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeSnapshotMigrated,
			Timestamp:   at,
			Version:     int(version),
		},
		AccountID: accountID,
		Steps:     steps,
	}
}

// Category Events

// CategoryCreated is raised when a category is added to an account
type CategoryCreated struct {
	BaseEvent
	AccountID  string `json:"account_id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
}

func NewCategoryCreated(accountID string, categoryID int64, name, kind string, at time.Time) CategoryCreated {
	return CategoryCreated{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeCategoryCreated,
			Timestamp:   at,
			Version:     1,
		},
		AccountID:  accountID,
		CategoryID: categoryID,
		Name:       name,
		Kind:       kind,
	}
}

// CategoryRenamed is raised when a category name changes
type CategoryRenamed struct {
	BaseEvent
	AccountID  string `json:"account_id"`
	CategoryID int64  `json:"category_id"`
	OldName    string `json:"old_name"`
	NewName    string `json:"new_name"`
}

func NewCategoryRenamed(accountID string, categoryID int64, oldName, newName string, at time.Time) CategoryRenamed {
	return CategoryRenamed{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeCategoryRenamed,
			Timestamp:   at,
			Version:     1,
		},
		AccountID:  accountID,
		CategoryID: categoryID,
		OldName:    oldName,
		NewName:    newName,
	}
}

// CategoryDeleted is raised after a category is removed and its
// transactions were moved to the fallback category
type CategoryDeleted struct {
	BaseEvent
	AccountID    string `json:"account_id"`
	CategoryID   int64  `json:"category_id"`
	ReassignedTo int64  `json:"reassigned_to"`
	Reassigned   int    `json:"reassigned"`
}

func NewCategoryDeleted(accountID string, categoryID, reassignedTo int64, reassigned int, at time.Time) CategoryDeleted {
	return CategoryDeleted{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeCategoryDeleted,
			Timestamp:   at,
			Version:     1,
		},
		AccountID:    accountID,
		CategoryID:   categoryID,
		ReassignedTo: reassignedTo,
		Reassigned:   reassigned,
	}
}

// Account Events

// AccountCreated is raised on registration
type AccountCreated struct {
	BaseEvent
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

func NewAccountCreated(accountID, email string, at time.Time) AccountCreated {
	return AccountCreated{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypeAccountCreated,
			Timestamp:   at,
			Version:     1,
		},
		AccountID: accountID,
		Email:     email,
	}
}
