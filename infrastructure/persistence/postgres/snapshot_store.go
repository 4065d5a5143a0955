package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
)

// SnapshotStore keeps one JSONB document per account. Writes are a
// compare-and-swap on the version column.
type SnapshotStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool, now: time.Now}
}

// Read implements ports.SnapshotStore
func (s *SnapshotStore) Read(ctx context.Context, accountID string) (*aggregates.Snapshot, error) {
	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT document, version, updated_at FROM snapshots WHERE account_id = $1`,
		accountID,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	doc, err := aggregates.DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &aggregates.Snapshot{
		AccountID: accountID,
		Document:  doc,
		Version:   version,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// Write implements ports.SnapshotStore
func (s *SnapshotStore) Write(ctx context.Context, accountID string, doc aggregates.Document, expectedVersion int64) (aggregates.WriteResult, error) {
	raw, err := doc.Encode()
	if err != nil {
		return aggregates.WriteResult{}, err
	}
	now := s.now().UTC()

	var affected int64
	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO snapshots (account_id, document, version, updated_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (account_id) DO NOTHING`,
			accountID, raw, now,
		)
		if err != nil {
			return aggregates.WriteResult{}, fmt.Errorf("insert snapshot: %w", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE snapshots
			 SET document = $2, version = version + 1, updated_at = $3
			 WHERE account_id = $1 AND version = $4`,
			accountID, raw, now, expectedVersion,
		)
		if err != nil {
			return aggregates.WriteResult{}, fmt.Errorf("update snapshot: %w", err)
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		current, err := s.currentVersion(ctx, accountID)
		if err != nil {
			return aggregates.WriteResult{}, err
		}
		return aggregates.WriteResult{}, &ports.VersionConflictError{ServerVersion: current}
	}
	return aggregates.WriteResult{Version: expectedVersion + 1, UpdatedAt: now}, nil
}

func (s *SnapshotStore) currentVersion(ctx context.Context, accountID string) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM snapshots WHERE account_id = $1`, accountID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select snapshot version: %w", err)
	}
	return version, nil
}

// Ping implements ports.Pinger
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
