package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsync/application/migration"
	"finsync/application/ports"
	"finsync/domain/config"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/validators"
	"finsync/domain/events"
	"finsync/domain/versioning"
	"finsync/infrastructure/persistence/memory"
	"finsync/pkg/observability"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	for _, e := range evts {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

// countingStore wraps a store, counting writes and optionally failing the
// next N writes with a version conflict
type countingStore struct {
	ports.SnapshotStore
	mu             sync.Mutex
	writes         int
	conflictWrites int
	beforeWrite    func()
}

func (s *countingStore) Write(ctx context.Context, accountID string, doc aggregates.Document, expected int64) (aggregates.WriteResult, error) {
	s.mu.Lock()
	s.writes++
	hook := s.beforeWrite
	if s.conflictWrites > 0 {
		s.conflictWrites--
		s.mu.Unlock()
		return aggregates.WriteResult{}, &ports.VersionConflictError{ServerVersion: expected + 1}
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.SnapshotStore.Write(ctx, accountID, doc, expected)
}

func (s *countingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fixture struct {
	store      *countingStore
	categories *memory.CategoryDirectory
	publisher  *recordingPublisher
	metrics    *observability.Collector
	sync       *SyncService
	category   *CategoryService
}

func newFixture(t *testing.T, policy config.VersionPolicy) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := &countingStore{SnapshotStore: memory.NewSnapshotStore()}
	categories := memory.NewCategoryDirectory()
	publisher := &recordingPublisher{}
	metrics := observability.NewCollector("test")

	f := &fixture{
		store:      store,
		categories: categories,
		publisher:  publisher,
		metrics:    metrics,
	}
	f.sync = NewSyncService(
		store,
		categories,
		migration.NewDefaultEngine(logger, metrics),
		versioning.NewResolver(policy),
		validators.NewDocumentValidator(1<<20),
		publisher,
		observability.NewTracer("test", false),
		metrics,
		logger,
		3,
	)
	f.category = NewCategoryService(categories, store, memory.NewLocker(0), publisher, metrics, logger, 3)
	return f
}

func decode(t *testing.T, raw string) aggregates.Document {
	t.Helper()
	doc, err := aggregates.DecodeDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}
