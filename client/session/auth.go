package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"finsync/client/apiclient"
	"finsync/client/localstore"
)

// AuthAPI is the part of the API client AuthSession needs
type AuthAPI interface {
	Register(ctx context.Context, email, password, displayName string) (*apiclient.User, error)
	Login(ctx context.Context, email, password string) (*apiclient.Session, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*apiclient.User, error)
	SetToken(token string)
}

// AuthStore persists the auth record
type AuthStore interface {
	LoadAuth(ctx context.Context) (localstore.AuthRecord, error)
	SaveAuth(ctx context.Context, rec localstore.AuthRecord) error
}

// AuthFunc observes auth record changes
type AuthFunc func(rec localstore.AuthRecord)

// AuthSession owns the login state. Listeners learn about every change,
// including a forced logout after the server rejected the token.
type AuthSession struct {
	api    AuthAPI
	store  AuthStore
	logger *zap.Logger

	mu        sync.Mutex
	rec       localstore.AuthRecord
	listeners []AuthFunc
}

func NewAuthSession(api AuthAPI, store AuthStore, logger *zap.Logger) *AuthSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthSession{api: api, store: store, logger: logger}
}

// OnChange registers fn for later changes
func (a *AuthSession) OnChange(fn AuthFunc) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

func (a *AuthSession) Record() localstore.AuthRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec
}

func (a *AuthSession) Online() bool {
	return a.Record().Online()
}

// Restore loads the persisted record and installs its token. Listeners are
// notified so a saved online session reconnects.
func (a *AuthSession) Restore(ctx context.Context) error {
	rec, err := a.store.LoadAuth(ctx)
	if err != nil {
		return fmt.Errorf("load auth: %w", err)
	}
	a.set(ctx, rec, false)
	return nil
}

// Register creates the account and then logs in with the same credentials
func (a *AuthSession) Register(ctx context.Context, email, password, displayName string) (*apiclient.User, error) {
	if _, err := a.api.Register(ctx, email, password, displayName); err != nil {
		return nil, err
	}
	return a.Login(ctx, email, password)
}

func (a *AuthSession) Login(ctx context.Context, email, password string) (*apiclient.User, error) {
	sess, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	rec := localstore.AuthRecord{
		Mode:      localstore.ModeOnline,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		UserID:    sess.User.ID,
		Email:     sess.User.Email,
	}
	if sess.User.DisplayName != nil {
		rec.DisplayName = *sess.User.DisplayName
	}
	a.set(ctx, rec, true)
	a.logger.Info("Logged in", zap.String("userID", rec.UserID))
	return &sess.User, nil
}

// Logout tells the server (best effort) and switches to offline mode
func (a *AuthSession) Logout(ctx context.Context) {
	if a.Online() {
		if err := a.api.Logout(ctx); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
			a.logger.Debug("Logout request failed", zap.Error(err))
		}
	}
	a.set(ctx, localstore.AuthRecord{Mode: localstore.ModeOffline}, true)
}

// UseOffline chooses local-only mode without an account
func (a *AuthSession) UseOffline(ctx context.Context) {
	a.set(ctx, localstore.AuthRecord{Mode: localstore.ModeOffline}, true)
}

// ForceOffline drops the token after the server rejected it
func (a *AuthSession) ForceOffline(ctx context.Context) {
	if !a.Online() {
		return
	}
	a.logger.Warn("Session token rejected, signing out")
	a.set(ctx, localstore.AuthRecord{Mode: localstore.ModeOffline}, true)
}

// Refresh re-reads the user from the server
func (a *AuthSession) Refresh(ctx context.Context) (*apiclient.User, error) {
	if !a.Online() {
		return nil, ErrNotConnected
	}
	user, err := a.api.Me(ctx)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		a.ForceOffline(ctx)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	rec := a.Record()
	rec.Email = user.Email
	rec.DisplayName = ""
	if user.DisplayName != nil {
		rec.DisplayName = *user.DisplayName
	}
	a.set(ctx, rec, true)
	return user, nil
}

func (a *AuthSession) set(ctx context.Context, rec localstore.AuthRecord, persist bool) {
	a.api.SetToken(rec.Token)

	a.mu.Lock()
	a.rec = rec
	listeners := append([]AuthFunc(nil), a.listeners...)
	a.mu.Unlock()

	if persist {
		if err := a.store.SaveAuth(ctx, rec); err != nil {
			a.logger.Warn("Failed to persist auth record", zap.Error(err))
		}
	}
	for _, fn := range listeners {
		fn(rec)
	}
}
