package memory

import (
	"context"
	"sync"
	"time"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
)

type snapshotRow struct {
	raw       []byte
	version   int64
	updatedAt time.Time
}

// SnapshotStore keeps encoded documents in process. Documents are stored as
// JSON so callers never share maps with the store.
type SnapshotStore struct {
	mu   sync.Mutex
	rows map[string]snapshotRow
	now  func() time.Time
}

// NewSnapshotStore creates an empty store
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		rows: make(map[string]snapshotRow),
		now:  time.Now,
	}
}

// Read implements ports.SnapshotStore
func (s *SnapshotStore) Read(ctx context.Context, accountID string) (*aggregates.Snapshot, error) {
	s.mu.Lock()
	row, ok := s.rows[accountID]
	s.mu.Unlock()
	if !ok {
		return nil, ports.ErrSnapshotNotFound
	}

	doc, err := aggregates.DecodeDocument(row.raw)
	if err != nil {
		return nil, err
	}
	return &aggregates.Snapshot{
		AccountID: accountID,
		Document:  doc,
		Version:   row.version,
		UpdatedAt: row.updatedAt,
	}, nil
}

// Write implements ports.SnapshotStore
func (s *SnapshotStore) Write(ctx context.Context, accountID string, doc aggregates.Document, expectedVersion int64) (aggregates.WriteResult, error) {
	raw, err := doc.Encode()
	if err != nil {
		return aggregates.WriteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.rows[accountID].version
	if current != expectedVersion {
		return aggregates.WriteResult{}, &ports.VersionConflictError{ServerVersion: current}
	}

	row := snapshotRow{
		raw:       raw,
		version:   expectedVersion + 1,
		updatedAt: s.now().UTC(),
	}
	s.rows[accountID] = row
	return aggregates.WriteResult{Version: row.version, UpdatedAt: row.updatedAt}, nil
}

// Ping implements ports.Pinger
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return nil
}
