package aggregates

import "time"

// Snapshot is the authoritative copy of one account's document
type Snapshot struct {
	AccountID string
	Document  Document
	Version   int64
	UpdatedAt time.Time
}

// EmptySnapshot is what a pull returns before the first accepted save
func EmptySnapshot(accountID string) *Snapshot {
	return &Snapshot{AccountID: accountID}
}

// Exists reports whether a save was ever accepted
func (s *Snapshot) Exists() bool {
	return s != nil && s.Version > 0
}

// WriteResult is returned by an accepted write
type WriteResult struct {
	Version   int64
	UpdatedAt time.Time
}
