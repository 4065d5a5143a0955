package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finsync/application/migration"
	"finsync/application/ports"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/domain/core/valueobjects"
	"finsync/domain/events"
	pkgerrors "finsync/pkg/errors"
	"finsync/pkg/observability"
)

// CategoryPatch holds the optional fields of an update
type CategoryPatch struct {
	Name      *string
	Kind      *string
	SortOrder *int
}

// IsEmpty reports whether the patch changes nothing
func (p CategoryPatch) IsEmpty() bool {
	return p.Name == nil && p.Kind == nil && p.SortOrder == nil
}

// DeleteResult describes a finished category delete
type DeleteResult struct {
	ReassignedTo int64
	Reassigned   int
}

// CategoryService manages categories and keeps snapshot references valid
type CategoryService struct {
	categories ports.CategoryDirectory
	store      ports.SnapshotStore
	locker     ports.Locker
	publisher  ports.EventPublisher
	metrics    *observability.Collector
	logger     *zap.Logger
	retries    int
}

// NewCategoryService creates a new category service
func NewCategoryService(
	categories ports.CategoryDirectory,
	store ports.SnapshotStore,
	locker ports.Locker,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
	retries int,
) *CategoryService {
	if retries < 1 {
		retries = 1
	}
	return &CategoryService{
		categories: categories,
		store:      store,
		locker:     locker,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		retries:    retries,
	}
}

// List returns the account's categories, creating "Other" first if needed
func (s *CategoryService) List(ctx context.Context, accountID string) ([]*entities.Category, error) {
	if _, err := s.ensureFallback(ctx, accountID); err != nil {
		return nil, err
	}
	cats, err := s.categories.List(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list categories", err)
	}
	return cats, nil
}

// Create adds a category. Names are unique per account, ignoring case.
func (s *CategoryService) Create(ctx context.Context, accountID, rawName, rawKind string) (*entities.Category, error) {
	name, err := valueobjects.NewCategoryName(rawName)
	if err != nil {
		return nil, invalidName(err)
	}

	cat, err := entities.NewCategory(accountID, name, valueobjects.ParseCategoryKind(rawKind), entities.DefaultSortOrder)
	if err != nil {
		return nil, err
	}

	if err := s.categories.Create(ctx, cat); err != nil {
		return nil, s.mapDirectoryError("create category", err)
	}

	s.publishEvents(ctx, cat)
	s.logger.Info("category created",
		zap.String("account_id", accountID),
		zap.Int64("category_id", cat.ID()),
		zap.String("name", cat.Name().String()),
	)
	return cat, nil
}

// Update applies a patch. Renaming "Other" is forbidden.
func (s *CategoryService) Update(ctx context.Context, accountID string, id int64, patch CategoryPatch) (*entities.Category, error) {
	if patch.IsEmpty() {
		return nil, pkgerrors.NewValidationError("nothing to update").WithCode(pkgerrors.CodeEmptyPatch)
	}

	cat, err := s.categories.Get(ctx, accountID, id)
	if err != nil {
		return nil, s.mapDirectoryError("get category", err)
	}

	if patch.Name != nil {
		name, err := valueobjects.NewCategoryName(*patch.Name)
		if err != nil {
			return nil, invalidName(err)
		}
		if err := cat.Rename(name); err != nil {
			return nil, err
		}
	}
	if patch.Kind != nil {
		cat.SetKind(valueobjects.ParseCategoryKind(*patch.Kind))
	}
	if patch.SortOrder != nil {
		cat.SetSortOrder(*patch.SortOrder)
	}

	if err := s.categories.Update(ctx, cat); err != nil {
		return nil, s.mapDirectoryError("update category", err)
	}
	s.publishEvents(ctx, cat)
	return cat, nil
}

// Delete moves every expense transaction that references the category to
// "Other" and then removes the category. Deletes for one account run one at
// a time.
func (s *CategoryService) Delete(ctx context.Context, accountID string, id int64) (*DeleteResult, error) {
	lock, err := s.locker.Acquire(ctx, "categories#"+accountID)
	if err != nil {
		if errors.Is(err, ports.ErrLockNotAcquired) {
			return nil, pkgerrors.NewConflictError("another category change is in progress").WithCause(err)
		}
		return nil, pkgerrors.NewUnavailableError("category lock").WithCause(err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release category lock", zap.String("account_id", accountID), zap.Error(err))
		}
	}()

	cat, err := s.categories.Get(ctx, accountID, id)
	if err != nil {
		return nil, s.mapDirectoryError("get category", err)
	}
	if err := cat.CanDelete(); err != nil {
		return nil, err
	}

	fallbackID, err := s.ensureFallback(ctx, accountID)
	if err != nil {
		return nil, err
	}

	reassigned, err := s.reassign(ctx, accountID, id, fallbackID)
	if err != nil {
		return nil, err
	}

	if err := s.categories.Delete(ctx, accountID, id); err != nil {
		return nil, s.mapDirectoryError("delete category", err)
	}

	s.metrics.RecordCategoryDelete(reassigned)
	s.publish(ctx, events.NewCategoryDeleted(accountID, id, fallbackID, reassigned, time.Now().UTC()))
	s.logger.Info("category deleted",
		zap.String("account_id", accountID),
		zap.Int64("category_id", id),
		zap.Int64("reassigned_to", fallbackID),
		zap.Int("reassigned", reassigned),
	)
	return &DeleteResult{ReassignedTo: fallbackID, Reassigned: reassigned}, nil
}

// reassign rewrites categoryId references with a compare-and-swap write,
// re-reading on conflict
func (s *CategoryService) reassign(ctx context.Context, accountID string, from, to int64) (int, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		snap, err := s.store.Read(ctx, accountID)
		if errors.Is(err, ports.ErrSnapshotNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("read snapshot", err)
		}

		doc, err := snap.Document.Clone()
		if err != nil {
			return 0, pkgerrors.NewInternalError("stored document cannot be copied").WithCause(err)
		}
		n := ReassignCategory(doc, from, to)
		if n == 0 {
			return 0, nil
		}

		_, err = s.store.Write(ctx, accountID, doc, snap.Version)
		if _, conflict := ports.AsVersionConflict(err); conflict {
			continue
		}
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("write snapshot", err)
		}
		return n, nil
	}
	return 0, pkgerrors.NewConflictError("snapshot kept changing during category delete").
		WithCode(pkgerrors.CodeVersionConflict)
}

// ReassignCategory points expense transactions at category from to category
// to and returns how many changed
func ReassignCategory(doc aggregates.Document, from, to int64) int {
	n := 0
	for _, tx := range doc.Transactions() {
		if !tx.IsExpense() {
			continue
		}
		if id, ok := tx.CategoryID(); ok && id == from {
			tx.SetCategoryID(to)
			n++
		}
	}
	return n
}

func (s *CategoryService) ensureFallback(ctx context.Context, accountID string) (int64, error) {
	mc := &migration.Context{AccountID: accountID, Categories: s.categories}
	id, err := mc.EnsureCategory(ctx, valueobjects.LabelFromLegacy(valueobjects.FallbackCategoryName))
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("ensure Other category", err)
	}
	for _, cat := range mc.Created() {
		s.publishEvents(ctx, cat)
	}
	return id, nil
}

func (s *CategoryService) mapDirectoryError(op string, err error) error {
	switch {
	case errors.Is(err, ports.ErrCategoryNotFound):
		return pkgerrors.NewNotFoundError("category").WithCode(pkgerrors.CodeCategoryNotFound)
	case errors.Is(err, ports.ErrDuplicateCategoryName):
		return pkgerrors.NewConflictError("a category with this name already exists").
			WithCode(pkgerrors.CodeDuplicateCategory)
	case pkgerrors.GetAppError(err) != nil:
		return err
	default:
		return pkgerrors.NewDatabaseError(op, err)
	}
}

func (s *CategoryService) publishEvents(ctx context.Context, cat *entities.Category) {
	evts := cat.GetUncommittedEvents()
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(ctx, evts); err != nil {
		s.logger.Warn("failed to publish category events", zap.Int64("category_id", cat.ID()), zap.Error(err))
	}
	cat.MarkEventsAsCommitted()
}

func (s *CategoryService) publish(ctx context.Context, event events.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", event.GetEventType()), zap.Error(err))
	}
}

func invalidName(err error) error {
	return pkgerrors.NewValidationError(fmt.Sprintf("invalid category name: %v", err)).
		WithCode(pkgerrors.CodeInvalidCategoryName).
		WithDetail("field", "name")
}
