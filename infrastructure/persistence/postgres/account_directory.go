package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finsync/application/ports"
	"finsync/domain/core/entities"
)

// AccountDirectory stores accounts in the accounts table
type AccountDirectory struct {
	pool *pgxpool.Pool
}

func NewAccountDirectory(pool *pgxpool.Pool) *AccountDirectory {
	return &AccountDirectory{pool: pool}
}

func (d *AccountDirectory) Create(ctx context.Context, account *entities.Account) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID(),
		account.Email().String(),
		account.DisplayName(),
		account.PasswordHash(),
		account.CreatedAt(),
	)
	if isUniqueViolation(err) {
		return ports.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (d *AccountDirectory) GetByID(ctx context.Context, id string) (*entities.Account, error) {
	return d.getOne(ctx, `WHERE id = $1`, id)
}

func (d *AccountDirectory) GetByEmail(ctx context.Context, email string) (*entities.Account, error) {
	return d.getOne(ctx, `WHERE email = $1`, email)
}

func (d *AccountDirectory) getOne(ctx context.Context, where string, arg string) (*entities.Account, error) {
	var (
		id, email, displayName, hash string
		createdAt                    time.Time
	)
	err := d.pool.QueryRow(ctx,
		`SELECT id, email, display_name, password_hash, created_at FROM accounts `+where,
		arg,
	).Scan(&id, &email, &displayName, &hash, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return entities.ReconstructAccount(id, email, displayName, hash, createdAt.UTC()), nil
}
