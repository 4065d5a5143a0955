package memory

import (
	"context"
	"sync"
	"time"

	"finsync/application/ports"
)

// Locker serializes work per resource inside one process
type Locker struct {
	mu        sync.Mutex
	slots     map[string]chan struct{}
	waitLimit time.Duration
}

// NewLocker creates a locker. waitLimit <= 0 waits until ctx ends.
func NewLocker(waitLimit time.Duration) *Locker {
	return &Locker{
		slots:     make(map[string]chan struct{}),
		waitLimit: waitLimit,
	}
}

func (l *Locker) slot(resource string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[resource]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[resource] = ch
	}
	return ch
}

// Acquire implements ports.Locker
func (l *Locker) Acquire(ctx context.Context, resource string) (ports.Lock, error) {
	ch := l.slot(resource)

	var timeout <-chan time.Time
	if l.waitLimit > 0 {
		t := time.NewTimer(l.waitLimit)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case ch <- struct{}{}:
		return &memoryLock{ch: ch}, nil
	case <-timeout:
		return nil, ports.ErrLockNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryLock struct {
	once sync.Once
	ch   chan struct{}
}

func (m *memoryLock) Release(ctx context.Context) error {
	m.once.Do(func() { <-m.ch })
	return nil
}
