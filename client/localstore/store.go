// Package localstore persists client state between runs in a SQLite file:
// the auth record, the sync baseline and the offline document.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"finsync/domain/core/aggregates"
)

const (
	keyAuth     = "auth"
	keySyncMeta = "sync_meta"
	keyDocument = "offline_document"
	keyUnsent   = "unsent_document"
)

// Auth modes
const (
	ModeUndecided = ""
	ModeOffline   = "offline"
	ModeOnline    = "online"
)

// AuthRecord is the persisted login state
type AuthRecord struct {
	Mode        string    `json:"mode"`
	Token       string    `json:"token,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
}

// Online reports whether the record carries a usable session
func (a AuthRecord) Online() bool {
	return a.Mode == ModeOnline && a.Token != ""
}

// SyncMeta is the last version the client saw from the server
type SyncMeta struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Store is a small key/value table with JSON values
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and creates if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) put(ctx context.Context, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// get returns nil, nil for a missing key
func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.put(ctx, key, raw)
}

// LoadAuth returns the zero record when nothing was saved or the row is corrupt
func (s *Store) LoadAuth(ctx context.Context) (AuthRecord, error) {
	var rec AuthRecord
	raw, err := s.get(ctx, keyAuth)
	if err != nil || raw == nil {
		return rec, err
	}
	if json.Unmarshal(raw, &rec) != nil {
		return AuthRecord{}, nil
	}
	return rec, nil
}

func (s *Store) SaveAuth(ctx context.Context, rec AuthRecord) error {
	return s.putJSON(ctx, keyAuth, rec)
}

// LoadMeta returns version 0 when nothing was saved
func (s *Store) LoadMeta(ctx context.Context) (SyncMeta, error) {
	var meta SyncMeta
	raw, err := s.get(ctx, keySyncMeta)
	if err != nil || raw == nil {
		return meta, err
	}
	if json.Unmarshal(raw, &meta) != nil {
		return SyncMeta{}, nil
	}
	return meta, nil
}

func (s *Store) SaveMeta(ctx context.Context, meta SyncMeta) error {
	return s.putJSON(ctx, keySyncMeta, meta)
}

// LoadDocument returns the offline document, or nil when none is stored
func (s *Store) LoadDocument(ctx context.Context) (aggregates.Document, error) {
	return s.loadDocument(ctx, keyDocument)
}

func (s *Store) SaveDocument(ctx context.Context, doc aggregates.Document) error {
	return s.saveDocument(ctx, keyDocument, doc)
}

func (s *Store) ClearDocument(ctx context.Context) error {
	return s.delete(ctx, keyDocument)
}

// LoadUnsent returns the signed-in document whose push never completed
func (s *Store) LoadUnsent(ctx context.Context) (aggregates.Document, error) {
	return s.loadDocument(ctx, keyUnsent)
}

func (s *Store) SaveUnsent(ctx context.Context, doc aggregates.Document) error {
	return s.saveDocument(ctx, keyUnsent, doc)
}

func (s *Store) ClearUnsent(ctx context.Context) error {
	return s.delete(ctx, keyUnsent)
}

// loadDocument treats an undecodable value like a missing one
func (s *Store) loadDocument(ctx context.Context, key string) (aggregates.Document, error) {
	raw, err := s.get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	doc, err := aggregates.DecodeDocument(raw)
	if err != nil {
		return nil, nil
	}
	return doc, nil
}

func (s *Store) saveDocument(ctx context.Context, key string, doc aggregates.Document) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	return s.put(ctx, key, raw)
}
