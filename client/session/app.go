package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"finsync/client/apiclient"
	"finsync/client/finance"
	"finsync/client/localstore"
	"finsync/domain/core/aggregates"
)

// App wires the auth session, the sync session and the finance state. While
// signed in the cloud copy is the only truth; while offline the document is
// kept in the local store and never synced.
type App struct {
	API     *apiclient.Client
	Auth    *AuthSession
	Sync    *SyncSession
	Finance *finance.State

	store  *localstore.Store
	logger *zap.Logger

	mu     sync.Mutex
	online bool
	token  string
	userID string
}

// NewApp builds an App. Nothing touches the network until Start.
func NewApp(api *apiclient.Client, store *localstore.Store, cfg SyncConfig, logger *zap.Logger, opts ...finance.Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := NewAuthSession(api, store, logger.Named("auth"))
	app := &App{
		API:     api,
		Auth:    auth,
		Sync:    NewSyncSession(api, store, auth, cfg, logger.Named("sync")),
		Finance: finance.NewState(nil, opts...),
		store:   store,
		logger:  logger,
	}

	app.Finance.OnChange(app.onFinanceChange)
	app.Sync.OnAdopt(func(doc aggregates.Document) { app.Finance.Reset(doc) })
	app.Auth.OnChange(app.onAuthChange)
	return app
}

// Start restores the baseline, the offline document and the saved login.
// A saved online session connects and pulls in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Sync.LoadMeta(ctx); err != nil {
		return err
	}
	doc, err := a.store.LoadDocument(ctx)
	if err != nil {
		return err
	}
	a.Finance.Reset(doc)
	return a.Auth.Restore(ctx)
}

// Close flushes pending changes; the channel closes when they were sent
func (a *App) Close() <-chan struct{} {
	return a.Sync.Close()
}

func (a *App) isOnline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}

func (a *App) onAuthChange(rec localstore.AuthRecord) {
	online := rec.Online()
	a.mu.Lock()
	changed := online != a.online || rec.Token != a.token
	switched := online && a.userID != "" && rec.UserID != a.userID
	a.online, a.token = online, rec.Token
	if online {
		a.userID = rec.UserID
	}
	a.mu.Unlock()
	if !changed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if online {
		// Signing in discards the offline ledger; the cloud copy replaces it.
		if err := a.store.ClearDocument(ctx); err != nil {
			a.logger.Warn("Failed to clear offline document", zap.Error(err))
		}
		a.Finance.Reset(nil)
		if switched {
			// Changes another account could not send must not reach this one.
			a.Sync.Disconnect()
		}
		a.Sync.Connect()
		return
	}

	a.Sync.Disconnect()
	doc, err := a.store.LoadDocument(ctx)
	if err != nil {
		a.logger.Warn("Failed to load offline document", zap.Error(err))
	}
	a.Finance.Reset(doc)
}

func (a *App) onFinanceChange(doc aggregates.Document) {
	if a.isOnline() {
		a.Sync.Schedule(doc)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.SaveDocument(ctx, doc); err != nil {
		a.logger.Warn("Failed to save offline document", zap.Error(err))
	}
}

// Overview is the state reported by the status command
type Overview struct {
	Mode         string
	Email        string
	Status       Status
	Version      int64
	UpdatedAt    time.Time
	Pending      bool
	Breaker      string
	LastError    error
	ExpiresAt    time.Time
	Transactions int
}

func (a *App) Overview() Overview {
	rec := a.Auth.Record()
	return Overview{
		Mode:         rec.Mode,
		Email:        rec.Email,
		Status:       a.Sync.Status(),
		Version:      a.Sync.Version(),
		UpdatedAt:    a.Sync.UpdatedAt(),
		Pending:      a.Sync.HasPending(),
		Breaker:      a.API.BreakerState().String(),
		LastError:    a.Sync.LastError(),
		ExpiresAt:    rec.ExpiresAt,
		Transactions: len(a.Finance.Document().Transactions()),
	}
}
