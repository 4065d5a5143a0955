package session

import "errors"

// Status is the sync state shown to the user
type Status string

const (
	StatusOffline  Status = "offline"
	StatusIdle     Status = "idle"
	StatusSyncing  Status = "syncing"
	StatusSynced   Status = "synced"
	StatusConflict Status = "conflict"
	StatusError    Status = "error"
)

var (
	// ErrNotConnected is returned by explicit operations while signed out
	ErrNotConnected = errors.New("sync session is not connected")
	// ErrConflictRetriesExhausted means every pull-then-retry lost the race
	ErrConflictRetriesExhausted = errors.New("push kept conflicting with newer server versions")
	// ErrNothingToRetry is returned by Retry when no failed push is held
	ErrNothingToRetry = errors.New("no failed push to retry")
)

// StatusFunc observes status transitions
type StatusFunc func(status Status, err error)
