package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"finsync/application/migration"
	"finsync/application/ports"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/validators"
	"finsync/domain/events"
	"finsync/domain/versioning"
	pkgerrors "finsync/pkg/errors"
	"finsync/pkg/observability"
)

// Push outcomes recorded in metrics
const (
	PushAccepted = "accepted"
	PushConflict = "conflict"
	PushRejected = "rejected"
)

// PullResult is the migrated snapshot returned to a client. Document is nil
// and UpdatedAt is nil for an account that never saved.
type PullResult struct {
	Document  aggregates.Document
	Version   int64
	UpdatedAt *time.Time
	Migrated  []string
}

// PushResult is returned for an accepted push
type PushResult struct {
	Version   int64
	UpdatedAt time.Time
}

// SyncService implements pull (with migration) and push (with conflict resolution)
type SyncService struct {
	store      ports.SnapshotStore
	categories ports.CategoryDirectory
	engine     *migration.Engine
	resolver   *versioning.Resolver
	validator  *validators.DocumentValidator
	publisher  ports.EventPublisher
	tracer     *observability.Tracer
	metrics    *observability.Collector
	logger     *zap.Logger
	retries    int
}

// NewSyncService creates a new sync service
func NewSyncService(
	store ports.SnapshotStore,
	categories ports.CategoryDirectory,
	engine *migration.Engine,
	resolver *versioning.Resolver,
	validator *validators.DocumentValidator,
	publisher ports.EventPublisher,
	tracer *observability.Tracer,
	metrics *observability.Collector,
	logger *zap.Logger,
	retries int,
) *SyncService {
	if retries < 1 {
		retries = 1
	}
	return &SyncService{
		store:      store,
		categories: categories,
		engine:     engine,
		resolver:   resolver,
		validator:  validator,
		publisher:  publisher,
		tracer:     tracer,
		metrics:    metrics,
		logger:     logger,
		retries:    retries,
	}
}

// Pull returns the account's snapshot after migrating it to the current
// schema. A migration that changed the document is persisted as a new version
// before it is returned.
func (s *SyncService) Pull(ctx context.Context, accountID string) (*PullResult, error) {
	var result *PullResult
	err := s.tracer.TraceFunction(ctx, "sync.pull", func(ctx context.Context) error {
		var err error
		result, err = s.pull(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPull()
	return result, nil
}

func (s *SyncService) pull(ctx context.Context, accountID string) (*PullResult, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		snap, err := s.read(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !snap.Exists() {
			// Nothing to persist, but the account still gets its fallback category.
			if _, err := s.engine.Run(ctx, accountID, aggregates.Document{}, s.categories); err != nil {
				return nil, pkgerrors.NewDatabaseError("migrate", err)
			}
			return &PullResult{}, nil
		}

		doc, err := snap.Document.Clone()
		if err != nil {
			return nil, pkgerrors.NewInternalError("stored document cannot be copied").WithCause(err)
		}

		migrated, err := s.engine.Run(ctx, accountID, doc, s.categories)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("migrate", err)
		}
		if !migrated.Changed {
			updatedAt := snap.UpdatedAt
			return &PullResult{Document: snap.Document, Version: snap.Version, UpdatedAt: &updatedAt}, nil
		}

		res, err := s.write(ctx, accountID, migrated.Document, snap.Version)
		if vc, ok := ports.AsVersionConflict(err); ok {
			s.logger.Debug("migration write lost a race, re-reading",
				zap.String("account_id", accountID),
				zap.Int64("server_version", vc.ServerVersion),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publish(ctx, events.NewSnapshotMigrated(accountID, res.Version, migrated.Applied, res.UpdatedAt))
		for _, cat := range migrated.Created {
			s.publishAll(ctx, cat.GetUncommittedEvents())
			cat.MarkEventsAsCommitted()
		}
		updatedAt := res.UpdatedAt
		return &PullResult{
			Document:  migrated.Document,
			Version:   res.Version,
			UpdatedAt: &updatedAt,
			Migrated:  migrated.Applied,
		}, nil
	}

	s.logger.Warn("migration did not settle", zap.String("account_id", accountID), zap.Int("attempts", s.retries))
	return nil, pkgerrors.NewUnavailableError("snapshot store").
		WithCode(pkgerrors.CodeMigrationUnsettled).
		WithDetail("attempts", s.retries)
}

// Push stores state when clientVersion is not behind the stored version.
// A rejected push returns *ports.VersionConflictError carrying the server version.
func (s *SyncService) Push(ctx context.Context, accountID string, state any, clientVersion int64) (*PushResult, error) {
	var result *PushResult
	err := s.tracer.TraceFunction(ctx, "sync.push", func(ctx context.Context) error {
		var err error
		result, err = s.push(ctx, accountID, state, clientVersion)
		return err
	})

	switch _, conflict := ports.AsVersionConflict(err); {
	case err == nil:
		s.metrics.IncPush(PushAccepted)
	case conflict:
		s.metrics.IncPush(PushConflict)
	default:
		s.metrics.IncPush(PushRejected)
	}
	return result, err
}

func (s *SyncService) push(ctx context.Context, accountID string, state any, clientVersion int64) (*PushResult, error) {
	if clientVersion < 0 {
		return nil, pkgerrors.NewValidationError("version must be a non-negative integer").
			WithDetail("field", "version")
	}
	doc, _, err := s.validator.Validate(state)
	if err != nil {
		return nil, err
	}

	snap, err := s.read(ctx, accountID)
	if err != nil {
		return nil, err
	}

	decision := s.resolver.Resolve(clientVersion, snap.Version)
	s.tracer.AddAnnotation(ctx, "accepted", strconv.FormatBool(decision.Accept))
	if !decision.Accept {
		s.logger.Info("push rejected",
			zap.String("account_id", accountID),
			zap.Int64("client_version", clientVersion),
			zap.Int64("server_version", decision.ServerVersion),
		)
		return nil, &ports.VersionConflictError{ServerVersion: decision.ServerVersion}
	}

	res, err := s.write(ctx, accountID, doc, decision.ServerVersion)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewSnapshotSaved(accountID, res.Version, res.UpdatedAt))
	return &PushResult{Version: res.Version, UpdatedAt: res.UpdatedAt}, nil
}

// read treats a missing snapshot as version 0
func (s *SyncService) read(ctx context.Context, accountID string) (*aggregates.Snapshot, error) {
	start := time.Now()
	snap, err := s.store.Read(ctx, accountID)
	if errors.Is(err, ports.ErrSnapshotNotFound) {
		s.metrics.ObserveStore("read", nil, time.Since(start))
		return aggregates.EmptySnapshot(accountID), nil
	}
	s.metrics.ObserveStore("read", err, time.Since(start))
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("read snapshot", err)
	}
	return snap, nil
}

// write passes version conflicts through untouched
func (s *SyncService) write(ctx context.Context, accountID string, doc aggregates.Document, expected int64) (aggregates.WriteResult, error) {
	start := time.Now()
	res, err := s.store.Write(ctx, accountID, doc, expected)
	if _, conflict := ports.AsVersionConflict(err); conflict {
		s.metrics.ObserveStore("write", nil, time.Since(start))
		return res, err
	}
	s.metrics.ObserveStore("write", err, time.Since(start))
	if err != nil {
		return res, pkgerrors.NewDatabaseError("write snapshot", err)
	}
	return res, nil
}

func (s *SyncService) publish(ctx context.Context, event events.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", event.GetEventType()),
			zap.String("aggregate_id", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

func (s *SyncService) publishAll(ctx context.Context, evts []events.DomainEvent) {
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(ctx, evts); err != nil {
		s.logger.Warn("failed to publish events", zap.Int("count", len(evts)), zap.Error(err))
	}
}
