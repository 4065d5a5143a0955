package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"finsync/client/apiclient"
	"finsync/client/localstore"
	"finsync/domain/core/aggregates"
)

// Remote is the part of the API client the sync session needs
type Remote interface {
	Pull(ctx context.Context) (*apiclient.Snapshot, error)
	Push(ctx context.Context, doc aggregates.Document, version int64) (*apiclient.PushResult, error)
}

// MetaStore persists the sync baseline and the document whose push has not
// been confirmed, so a restart can offer it again
type MetaStore interface {
	LoadMeta(ctx context.Context) (localstore.SyncMeta, error)
	SaveMeta(ctx context.Context, meta localstore.SyncMeta) error
	LoadUnsent(ctx context.Context) (aggregates.Document, error)
	SaveUnsent(ctx context.Context, doc aggregates.Document) error
	ClearUnsent(ctx context.Context) error
}

// Deauthorizer is told when the server rejected the session token
type Deauthorizer interface {
	ForceOffline(ctx context.Context)
}

// AdoptFunc receives a cloud document that replaces local state. nil means
// the account has no snapshot yet.
type AdoptFunc func(doc aggregates.Document)

// SyncConfig tunes the session
type SyncConfig struct {
	Debounce           time.Duration
	MaxConflictRetries int
	RequestTimeout     time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Debounce:           800 * time.Millisecond,
		MaxConflictRetries: 3,
		RequestTimeout:     20 * time.Second,
	}
}

// SyncSession keeps one account's document in step with the server. Mutations
// are coalesced by a debounce timer; at most one push is in flight, and pulls
// and pushes never overlap. Nothing is pushed in a generation until a pull of
// that generation succeeded.
type SyncSession struct {
	remote Remote
	meta   MetaStore
	auth   Deauthorizer
	logger *zap.Logger
	cfg    SyncConfig

	mu         sync.Mutex
	connected  bool
	status     Status
	lastErr    error
	version    int64
	updatedAt  time.Time
	pending    aggregates.Document
	failed     aggregates.Document
	timer      *time.Timer
	inFlight   bool
	dirty      bool
	generation uint64
	hydrated   bool
	pulling    bool
	onStatus   []StatusFunc
	onAdopt    []AdoptFunc

	opMu sync.Mutex
	wg   sync.WaitGroup
}

// NewSyncSession creates a disconnected session. meta and auth may be nil.
func NewSyncSession(remote Remote, meta MetaStore, auth Deauthorizer, cfg SyncConfig, logger *zap.Logger) *SyncSession {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultSyncConfig().Debounce
	}
	if cfg.MaxConflictRetries < 1 {
		cfg.MaxConflictRetries = DefaultSyncConfig().MaxConflictRetries
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultSyncConfig().RequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncSession{
		remote: remote,
		meta:   meta,
		auth:   auth,
		logger: logger,
		cfg:    cfg,
		status: StatusOffline,
	}
}

// LoadMeta restores the persisted baseline
func (s *SyncSession) LoadMeta(ctx context.Context) error {
	if s.meta == nil {
		return nil
	}
	meta, err := s.meta.LoadMeta(ctx)
	if err != nil {
		return fmt.Errorf("load sync meta: %w", err)
	}
	s.mu.Lock()
	s.version = meta.Version
	s.updatedAt = meta.UpdatedAt
	s.mu.Unlock()
	return nil
}

// OnStatus registers a status observer. Observers run on the goroutine that
// changed the status and must not block.
func (s *SyncSession) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	s.onStatus = append(s.onStatus, fn)
	s.mu.Unlock()
}

// OnAdopt registers the receiver of pulled documents
func (s *SyncSession) OnAdopt(fn AdoptFunc) {
	s.mu.Lock()
	s.onAdopt = append(s.onAdopt, fn)
	s.mu.Unlock()
}

func (s *SyncSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Version is the baseline the next push will carry
func (s *SyncSession) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *SyncSession) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Hydrated reports whether a pull succeeded since the last Connect
func (s *SyncSession) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.hydrated
}

// HasPending reports whether a local change has not reached the server
func (s *SyncSession) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil || s.inFlight || s.failed != nil
}

// Connect starts a new generation and pulls in the background. The pulled
// document replaces local state.
func (s *SyncSession) Connect() {
	s.mu.Lock()
	s.resetLocked()
	s.connected = true
	s.pulling = true
	gen := s.generation
	s.mu.Unlock()

	s.goPull(gen)
}

// Disconnect stops the timer and drops unsent changes, including the saved
// copy. Requests already on the wire run to completion; their results are
// ignored.
func (s *SyncSession) Disconnect() {
	s.mu.Lock()
	s.resetLocked()
	s.connected = false
	s.clearUnsentLocked()
	fire := s.setStatusLocked(StatusOffline, nil)
	s.mu.Unlock()
	fire()
}

// resetLocked starts a new generation
func (s *SyncSession) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.failed = nil
	s.dirty = false
	s.inFlight = false
	s.hydrated = false
	s.pulling = false
	s.generation++
}

// goPull hydrates gen in the background; callers set pulling first
func (s *SyncSession) goPull(gen uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.pull(context.Background(), gen, pullHydrate)
	}()
}

// startPullLocked queues a hydrating pull unless one is already queued
func (s *SyncSession) startPullLocked() {
	if s.pulling {
		return
	}
	s.pulling = true
	s.goPull(s.generation)
}

// Hydrate blocks until a pull of the current generation succeeded, running
// one if none has. A document saved by an earlier run is offered again.
func (s *SyncSession) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	gen := s.generation
	s.mu.Unlock()
	return s.pull(ctx, gen, pullHydrate)
}

// Schedule records doc as the latest local state and (re)starts the
// debounce timer. It returns immediately and is a no-op while disconnected.
func (s *SyncSession) Schedule(doc aggregates.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.pending = doc
	s.failed = nil
	if s.inFlight {
		s.dirty = true
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.generation
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.flush(gen) })
}

// Resume pushes a held document now, for example after the network returned.
// Before the first successful pull it retries the pull instead.
func (s *SyncSession) Resume() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	if !s.hydrated {
		s.startPullLocked()
		s.mu.Unlock()
		return
	}
	if s.pending == nil {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	gen := s.generation
	s.mu.Unlock()
	s.flush(gen)
}

// Retry re-attempts the push that ended in the error state
func (s *SyncSession) Retry() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if !s.hydrated {
		s.startPullLocked()
		s.mu.Unlock()
		return nil
	}
	if s.failed == nil && s.pending == nil {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	if s.pending == nil {
		s.pending = s.failed
	}
	s.failed = nil
	gen := s.generation
	s.mu.Unlock()
	s.flush(gen)
	return nil
}

// flush starts the push of the pending document unless one is in flight.
// Until the generation is hydrated the document is held and a pull is
// attempted instead.
func (s *SyncSession) flush(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.connected {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.pending == nil {
		s.mu.Unlock()
		return
	}
	if !s.hydrated {
		s.startPullLocked()
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	doc := s.pending
	s.pending = nil
	s.dirty = false
	s.inFlight = true
	s.saveUnsentLocked(doc)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.push(gen, doc)
	}()
}

// push runs one push with pull-then-retry on conflict. The request is not
// tied to the generation: a disconnect lets it finish and drops the result.
func (s *SyncSession) push(gen uint64, doc aggregates.Document) {
	s.opMu.Lock()
	outcome := s.pushLocked(context.Background(), gen, doc, s.Version())
	s.opMu.Unlock()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.inFlight = false
	again := outcome == pushAccepted && (s.dirty || s.pending != nil) && s.timer == nil
	s.mu.Unlock()

	if outcome == pushUnauthorized {
		s.deauthorize()
		return
	}
	if again {
		s.flush(gen)
	}
}

type pushOutcome int

const (
	pushAccepted pushOutcome = iota
	pushStale
	pushOffline
	pushUnauthorized
	pushFailed
)

// pushLocked must be called with opMu held
func (s *SyncSession) pushLocked(ctx context.Context, gen uint64, doc aggregates.Document, version int64) pushOutcome {
	if !s.transition(gen, StatusSyncing, nil) {
		return pushStale
	}
	outbound := doc.WithClearedLegacyCategories()

	for attempt := 1; ; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		res, err := s.remote.Push(reqCtx, outbound, version)
		cancel()

		if err == nil {
			if !s.accept(gen, res) {
				return pushStale
			}
			s.logger.Debug("Push accepted", zap.Int64("version", res.Version), zap.Int("attempt", attempt))
			return pushAccepted
		}

		conflict, isConflict := apiclient.AsConflict(err)
		if !isConflict {
			return s.pushFailed(gen, doc, err)
		}
		if attempt >= s.cfg.MaxConflictRetries {
			return s.pushFailed(gen, doc, fmt.Errorf("%w: server at %d", ErrConflictRetriesExhausted, conflict.ServerVersion))
		}
		if !s.transition(gen, StatusConflict, nil) {
			return pushStale
		}
		s.logger.Info("Push conflicted, pulling server version",
			zap.Int64("clientVersion", version),
			zap.Int64("serverVersion", conflict.ServerVersion),
			zap.Int("attempt", attempt),
		)

		reqCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		snap, err := s.remote.Pull(reqCtx)
		cancel()
		if err != nil {
			return s.pushFailed(gen, doc, err)
		}
		version = snap.Version
		if !s.transition(gen, StatusSyncing, nil) {
			return pushStale
		}
	}
}

// accept records a new baseline; false when the generation moved on
func (s *SyncSession) accept(gen uint64, res *apiclient.PushResult) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.version = res.Version
	s.updatedAt = res.UpdatedAt
	s.clearUnsentLocked()
	fire := s.setStatusLocked(StatusSynced, nil)
	s.mu.Unlock()
	fire()
	s.saveMeta(res.Version, res.UpdatedAt)
	return true
}

func (s *SyncSession) pushFailed(gen uint64, doc aggregates.Document, err error) pushOutcome {
	s.mu.Lock()
	if gen != s.generation || errors.Is(err, context.Canceled) {
		s.mu.Unlock()
		return pushStale
	}

	var outcome pushOutcome
	var fire func()
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		outcome = pushUnauthorized
		fire = s.setStatusLocked(StatusOffline, err)
	case errors.Is(err, apiclient.ErrNetwork):
		// Keep the document unless a newer one already replaced it.
		if s.pending == nil {
			s.pending = doc
		}
		s.saveUnsentLocked(s.pending)
		outcome = pushOffline
		fire = s.setStatusLocked(StatusOffline, err)
	default:
		if s.pending == nil {
			s.failed = doc
		}
		// A rejected document is not offered again after a restart.
		s.clearUnsentLocked()
		outcome = pushFailed
		fire = s.setStatusLocked(StatusError, err)
	}
	status := s.status
	s.mu.Unlock()

	fire()
	s.logger.Warn("Push failed", zap.Error(err), zap.String("status", string(status)))
	return outcome
}

type pullMode int

const (
	// pullHydrate is skipped once the generation is hydrated and offers a
	// saved unsent document after adopting the cloud copy
	pullHydrate pullMode = iota
	// pullAdopt always replaces local state with the cloud copy
	pullAdopt
)

// pull fetches the cloud copy and hands it to the adopters. Whatever was
// scheduled before it succeeded is dropped: it was not built on the cloud copy.
func (s *SyncSession) pull(ctx context.Context, gen uint64, mode pullMode) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if mode == pullHydrate && s.hydrated {
		s.pulling = false
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if !s.transition(gen, StatusSyncing, nil) {
		return ErrNotConnected
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	snap, err := s.remote.Pull(reqCtx)
	cancel()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if err != nil {
		s.pulling = false
		status := StatusError
		if errors.Is(err, apiclient.ErrNetwork) || errors.Is(err, apiclient.ErrUnauthorized) {
			status = StatusOffline
		}
		fire := s.setStatusLocked(status, err)
		s.mu.Unlock()
		fire()
		s.logger.Warn("Pull failed", zap.Error(err))
		if errors.Is(err, apiclient.ErrUnauthorized) {
			s.deauthorize()
		}
		return err
	}

	s.version = snap.Version
	s.updatedAt = snap.UpdatedAt
	s.pending = nil
	s.failed = nil
	s.dirty = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	var unsent aggregates.Document
	if mode == pullHydrate {
		unsent = s.loadUnsentLocked()
	}
	adopters := append([]AdoptFunc(nil), s.onAdopt...)
	s.mu.Unlock()

	s.saveMeta(snap.Version, snap.UpdatedAt)
	for _, adopt := range adopters {
		adopt(snap.State)
	}
	if unsent != nil {
		for _, adopt := range adopters {
			adopt(unsent)
		}
	}

	// Synced is reported only once local state holds the cloud document.
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.hydrated = true
	s.pulling = false
	if unsent != nil {
		s.pending = unsent
	}
	fire := s.setStatusLocked(StatusSynced, nil)
	s.mu.Unlock()
	fire()
	s.logger.Debug("Pulled snapshot", zap.Int64("version", snap.Version))

	if unsent != nil {
		s.logger.Info("Sending changes saved by an earlier run", zap.Int64("baseVersion", snap.Version))
		s.Resume()
	}
	return nil
}

// PullCloud adopts the server document, discarding unsent local changes
func (s *SyncSession) PullCloud(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.failed = nil
	s.clearUnsentLocked()
	gen := s.generation
	s.mu.Unlock()

	return s.pull(ctx, gen, pullAdopt)
}

// ForceOverwrite replaces the server document with doc regardless of what
// the server holds. It blocks until the push resolves.
func (s *SyncSession) ForceOverwrite(ctx context.Context, doc aggregates.Document) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.failed = nil
	gen := s.generation
	s.mu.Unlock()

	s.opMu.Lock()
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	snap, err := s.remote.Pull(reqCtx)
	cancel()
	if err != nil {
		s.opMu.Unlock()
		if s.pushFailed(gen, doc, err) == pushUnauthorized {
			s.deauthorize()
		}
		return err
	}
	outcome := s.pushLocked(ctx, gen, doc, snap.Version)
	s.opMu.Unlock()

	switch outcome {
	case pushAccepted:
		return nil
	case pushUnauthorized:
		s.deauthorize()
		return apiclient.ErrUnauthorized
	case pushStale:
		return ErrNotConnected
	default:
		return s.LastError()
	}
}

// Close sends any pending document without waiting for the debounce. The
// returned channel closes once all background requests finished; callers
// that do not care may ignore it.
func (s *SyncSession) Close() <-chan struct{} {
	s.mu.Lock()
	var gen uint64
	flush := s.connected && s.hydrated && s.pending != nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	gen = s.generation
	s.mu.Unlock()

	if flush {
		s.flush(gen)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	return done
}

// transition sets status if gen is current
func (s *SyncSession) transition(gen uint64, status Status, err error) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	fire := s.setStatusLocked(status, err)
	s.mu.Unlock()
	fire()
	return true
}

// setStatusLocked updates the status and returns the notification to run
// after the lock is released.
func (s *SyncSession) setStatusLocked(status Status, err error) func() {
	s.lastErr = err
	if s.status == status && err == nil {
		return func() {}
	}
	s.status = status
	observers := append([]StatusFunc(nil), s.onStatus...)
	return func() {
		for _, fn := range observers {
			fn(status, err)
		}
	}
}

func (s *SyncSession) saveMeta(version int64, at time.Time) {
	if s.meta == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.meta.SaveMeta(ctx, localstore.SyncMeta{Version: version, UpdatedAt: at}); err != nil {
		s.logger.Warn("Failed to persist sync meta", zap.Error(err))
	}
}

// saveUnsentLocked keeps doc across restarts until a push of it is accepted
func (s *SyncSession) saveUnsentLocked(doc aggregates.Document) {
	if s.meta == nil || doc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.meta.SaveUnsent(ctx, doc); err != nil {
		s.logger.Warn("Failed to persist unsent document", zap.Error(err))
	}
}

func (s *SyncSession) clearUnsentLocked() {
	if s.meta == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.meta.ClearUnsent(ctx); err != nil {
		s.logger.Warn("Failed to clear unsent document", zap.Error(err))
	}
}

func (s *SyncSession) loadUnsentLocked() aggregates.Document {
	if s.meta == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc, err := s.meta.LoadUnsent(ctx)
	if err != nil {
		s.logger.Warn("Failed to load unsent document", zap.Error(err))
		return nil
	}
	return doc
}

func (s *SyncSession) deauthorize() {
	s.logger.Warn("Server rejected the session token, going offline")
	if s.auth != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.auth.ForceOffline(ctx)
	}
}
