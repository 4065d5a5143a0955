package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"finsync/application/ports"
)

// AdvisoryLocker serializes work across server instances with session-level
// advisory locks. The pooled connection is held until Release.
type AdvisoryLocker struct {
	pool      *pgxpool.Pool
	waitLimit time.Duration
	interval  time.Duration
}

func NewAdvisoryLocker(pool *pgxpool.Pool, waitLimit time.Duration) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, waitLimit: waitLimit, interval: 50 * time.Millisecond}
}

// Acquire implements ports.Locker
func (l *AdvisoryLocker) Acquire(ctx context.Context, resource string) (ports.Lock, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	deadline := time.Now().Add(l.waitLimit)
	for {
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, resource).Scan(&ok); err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock: %w", err)
		}
		if ok {
			return &advisoryLock{conn: conn, resource: resource}, nil
		}
		if time.Now().After(deadline) {
			conn.Release()
			return nil, ports.ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

type advisoryLock struct {
	conn     *pgxpool.Conn
	resource string
}

func (a *advisoryLock) Release(ctx context.Context) error {
	defer a.conn.Release()
	if _, err := a.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, a.resource); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
