package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"finsync/application/ports"
	"finsync/domain/core/entities"
)

type categoryRow struct {
	id        int64
	accountID string
	name      string
	kind      string
	sortOrder int
	createdAt time.Time
	updatedAt time.Time
}

func (r categoryRow) toEntity() *entities.Category {
	return entities.ReconstructCategory(r.id, r.accountID, r.name, r.kind, r.sortOrder, r.createdAt, r.updatedAt)
}

// CategoryDirectory is an in-process ports.CategoryDirectory
type CategoryDirectory struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string]map[int64]categoryRow
}

func NewCategoryDirectory() *CategoryDirectory {
	return &CategoryDirectory{rows: make(map[string]map[int64]categoryRow)}
}

func (d *CategoryDirectory) List(ctx context.Context, accountID string) ([]*entities.Category, error) {
	d.mu.RLock()
	rows := make([]categoryRow, 0, len(d.rows[accountID]))
	for _, r := range d.rows[accountID] {
		rows = append(rows, r)
	}
	d.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].sortOrder != rows[j].sortOrder {
			return rows[i].sortOrder < rows[j].sortOrder
		}
		return strings.ToLower(rows[i].name) < strings.ToLower(rows[j].name)
	})

	out := make([]*entities.Category, len(rows))
	for i, r := range rows {
		out[i] = r.toEntity()
	}
	return out, nil
}

func (d *CategoryDirectory) Get(ctx context.Context, accountID string, id int64) (*entities.Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rows[accountID][id]
	if !ok {
		return nil, ports.ErrCategoryNotFound
	}
	return r.toEntity(), nil
}

func (d *CategoryDirectory) FindByName(ctx context.Context, accountID string, name string) (*entities.Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if r, ok := d.findLocked(accountID, name, 0); ok {
		return r.toEntity(), nil
	}
	return nil, ports.ErrCategoryNotFound
}

func (d *CategoryDirectory) Create(ctx context.Context, category *entities.Category) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	accountID := category.AccountID()
	if _, dup := d.findLocked(accountID, category.Name().String(), 0); dup {
		return ports.ErrDuplicateCategoryName
	}

	d.nextID++
	category.AssignID(d.nextID)
	if d.rows[accountID] == nil {
		d.rows[accountID] = make(map[int64]categoryRow)
	}
	d.rows[accountID][category.ID()] = rowFromEntity(category)
	return nil
}

func (d *CategoryDirectory) Update(ctx context.Context, category *entities.Category) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	accountID := category.AccountID()
	if _, ok := d.rows[accountID][category.ID()]; !ok {
		return ports.ErrCategoryNotFound
	}
	if _, dup := d.findLocked(accountID, category.Name().String(), category.ID()); dup {
		return ports.ErrDuplicateCategoryName
	}
	d.rows[accountID][category.ID()] = rowFromEntity(category)
	return nil
}

func (d *CategoryDirectory) Delete(ctx context.Context, accountID string, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rows[accountID][id]; !ok {
		return ports.ErrCategoryNotFound
	}
	delete(d.rows[accountID], id)
	return nil
}

// findLocked matches name case-insensitively, skipping excludeID
func (d *CategoryDirectory) findLocked(accountID, name string, excludeID int64) (categoryRow, bool) {
	for id, r := range d.rows[accountID] {
		if id != excludeID && strings.EqualFold(r.name, name) {
			return r, true
		}
	}
	return categoryRow{}, false
}

func rowFromEntity(c *entities.Category) categoryRow {
	return categoryRow{
		id:        c.ID(),
		accountID: c.AccountID(),
		name:      c.Name().String(),
		kind:      string(c.Kind()),
		sortOrder: c.SortOrder(),
		createdAt: c.CreatedAt(),
		updatedAt: c.UpdatedAt(),
	}
}
