package entities

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"finsync/domain/core/valueobjects"
	"finsync/domain/events"
	pkgerrors "finsync/pkg/errors"
)

// MaxDisplayNameLength bounds the optional display name
const MaxDisplayNameLength = 80

// Account owns exactly one snapshot and one category set
type Account struct {
	id           string
	email        valueobjects.Email
	displayName  string
	passwordHash string
	createdAt    time.Time

	events []events.DomainEvent
}

// NewAccount creates an account from an already hashed password
func NewAccount(email valueobjects.Email, displayName, passwordHash string) (*Account, error) {
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, pkgerrors.NewValidationError("display name is too long").
			WithDetail("field", "displayName")
	}
	if passwordHash == "" {
		return nil, pkgerrors.NewValidationError("password hash cannot be empty")
	}

	a := &Account{
		id:           uuid.NewString(),
		email:        email,
		displayName:  displayName,
		passwordHash: passwordHash,
		createdAt:    time.Now().UTC(),
	}
	a.events = append(a.events, events.NewAccountCreated(a.id, email.String(), a.createdAt))
	return a, nil
}

// ReconstructAccount rebuilds an account from stored fields
func ReconstructAccount(id, email, displayName, passwordHash string, createdAt time.Time) *Account {
	return &Account{
		id:           id,
		email:        valueobjects.EmailFromStored(email),
		displayName:  displayName,
		passwordHash: passwordHash,
		createdAt:    createdAt,
	}
}

func (a *Account) ID() string                { return a.id }
func (a *Account) Email() valueobjects.Email { return a.email }
func (a *Account) DisplayName() string       { return a.displayName }
func (a *Account) PasswordHash() string      { return a.passwordHash }
func (a *Account) CreatedAt() time.Time      { return a.createdAt }

func (a *Account) GetUncommittedEvents() []events.DomainEvent { return a.events }
func (a *Account) MarkEventsAsCommitted()                     { a.events = nil }
