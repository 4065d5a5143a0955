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

const categoryColumns = `id, account_id, name, kind, sort_order, created_at, updated_at`

// CategoryDirectory stores categories with a unique (account_id, lower(name)) index
type CategoryDirectory struct {
	pool *pgxpool.Pool
}

func NewCategoryDirectory(pool *pgxpool.Pool) *CategoryDirectory {
	return &CategoryDirectory{pool: pool}
}

func scanCategory(row pgx.Row) (*entities.Category, error) {
	var (
		id                   int64
		accountID, name      string
		kind                 string
		sortOrder            int
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &accountID, &name, &kind, &sortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return entities.ReconstructCategory(id, accountID, name, kind, sortOrder, createdAt.UTC(), updatedAt.UTC()), nil
}

func (d *CategoryDirectory) List(ctx context.Context, accountID string) ([]*entities.Category, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE account_id = $1
		 ORDER BY sort_order, lower(name)`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var out []*entities.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (d *CategoryDirectory) Get(ctx context.Context, accountID string, id int64) (*entities.Category, error) {
	cat, err := scanCategory(d.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE account_id = $1 AND id = $2`,
		accountID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select category: %w", err)
	}
	return cat, nil
}

func (d *CategoryDirectory) FindByName(ctx context.Context, accountID string, name string) (*entities.Category, error) {
	cat, err := scanCategory(d.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE account_id = $1 AND lower(name) = lower($2)`,
		accountID, name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select category by name: %w", err)
	}
	return cat, nil
}

func (d *CategoryDirectory) Create(ctx context.Context, category *entities.Category) error {
	var id int64
	err := d.pool.QueryRow(ctx,
		`INSERT INTO categories (account_id, name, kind, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		category.AccountID(),
		category.Name().String(),
		string(category.Kind()),
		category.SortOrder(),
		category.CreatedAt(),
		category.UpdatedAt(),
	).Scan(&id)
	if isUniqueViolation(err) {
		return ports.ErrDuplicateCategoryName
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	category.AssignID(id)
	return nil
}

func (d *CategoryDirectory) Update(ctx context.Context, category *entities.Category) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE categories
		 SET name = $3, kind = $4, sort_order = $5, updated_at = $6
		 WHERE account_id = $1 AND id = $2`,
		category.AccountID(),
		category.ID(),
		category.Name().String(),
		string(category.Kind()),
		category.SortOrder(),
		category.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return ports.ErrDuplicateCategoryName
	}
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrCategoryNotFound
	}
	return nil
}

func (d *CategoryDirectory) Delete(ctx context.Context, accountID string, id int64) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM categories WHERE account_id = $1 AND id = $2`, accountID, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrCategoryNotFound
	}
	return nil
}
