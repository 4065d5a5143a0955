package memory

import (
	"context"
	"sync"

	"finsync/application/ports"
	"finsync/domain/core/entities"
)

// AccountDirectory is an in-process ports.AccountDirectory
type AccountDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*entities.Account
	byEmail map[string]string
}

func NewAccountDirectory() *AccountDirectory {
	return &AccountDirectory{
		byID:    make(map[string]*entities.Account),
		byEmail: make(map[string]string),
	}
}

func (d *AccountDirectory) Create(ctx context.Context, account *entities.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := account.Email().String()
	if _, exists := d.byEmail[email]; exists {
		return ports.ErrDuplicateEmail
	}
	d.byID[account.ID()] = entities.ReconstructAccount(
		account.ID(), email, account.DisplayName(), account.PasswordHash(), account.CreatedAt(),
	)
	d.byEmail[email] = account.ID()
	return nil
}

func (d *AccountDirectory) GetByID(ctx context.Context, id string) (*entities.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byID[id]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}
	return a, nil
}

func (d *AccountDirectory) GetByEmail(ctx context.Context, email string) (*entities.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}
	return d.byID[id], nil
}
