package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/domain/config"
	"finsync/domain/core/entities"
	"finsync/domain/core/valueobjects"
	pkgerrors "finsync/pkg/errors"
)

// ErrInvalidCredentials is returned by the verifier for any failed login
var ErrInvalidCredentials = errors.New("invalid email or password")

// PasswordVerifier checks credentials against stored password hashes
type PasswordVerifier struct {
	accounts ports.AccountDirectory
	hasher   ports.PasswordHasher
}

func NewPasswordVerifier(accounts ports.AccountDirectory, hasher ports.PasswordHasher) *PasswordVerifier {
	return &PasswordVerifier{accounts: accounts, hasher: hasher}
}

// Verify implements ports.CredentialVerifier
func (v *PasswordVerifier) Verify(ctx context.Context, email, password string) (*entities.Account, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	account, err := v.accounts.GetByEmail(ctx, normalized)
	if errors.Is(err, ports.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if err := v.hasher.Compare(account.PasswordHash(), password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// RegisterInput is the data needed to open an account
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginResult carries an issued token
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *entities.Account
}

// AuthService registers accounts and issues tokens
type AuthService struct {
	accounts ports.AccountDirectory
	verifier ports.CredentialVerifier
	hasher   ports.PasswordHasher
	tokens   ports.TokenIssuer
	rules    *config.DomainConfig
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	accounts ports.AccountDirectory,
	verifier ports.CredentialVerifier,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	rules *config.DomainConfig,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		verifier: verifier,
		hasher:   hasher,
		tokens:   tokens,
		rules:    rules,
		logger:   logger,
	}
}

// Register validates input and creates an account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*entities.Account, error) {
	verrs := pkgerrors.NewValidationErrors()

	email, err := valueobjects.NewEmail(in.Email)
	if err != nil {
		verrs.Add("email", err.Error())
	}
	if utf8.RuneCountInString(in.Password) < s.rules.MinPasswordLength {
		verrs.Add("password", fmt.Sprintf("must be at least %d characters", s.rules.MinPasswordLength))
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.DisplayName)) > s.rules.MaxDisplayNameLength {
		verrs.Add("displayName", fmt.Sprintf("must be at most %d characters", s.rules.MaxDisplayNameLength))
	}
	if verrs.HasErrors() {
		return nil, verrs.AsAppError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to hash password").WithCause(err)
	}

	account, err := entities.NewAccount(email, in.DisplayName, hash)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ports.ErrDuplicateEmail) {
			return nil, pkgerrors.NewConflictError("email is already registered").
				WithCode(pkgerrors.CodeDuplicateEmail)
		}
		return nil, pkgerrors.NewDatabaseError("create account", err)
	}

	s.logger.Info("account registered", zap.String("account_id", account.ID()))
	return account, nil
}

// Login verifies credentials and issues a bearer token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := s.verifier.Verify(ctx, email, password)
	if errors.Is(err, ErrInvalidCredentials) {
		return nil, pkgerrors.NewUnauthorizedError("invalid email or password").
			WithCode(pkgerrors.CodeInvalidCredentials)
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("verify credentials", err)
	}

	token, expiresAt, err := s.tokens.GenerateToken(account.ID(), account.Email().String())
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to issue token").WithCause(err)
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// Me returns the authenticated account
func (s *AuthService) Me(ctx context.Context, accountID string) (*entities.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, ports.ErrAccountNotFound) {
		return nil, pkgerrors.NewUnauthorizedError("account no longer exists").
			WithCode(pkgerrors.CodeAuthenticationFailed)
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get account", err)
	}
	return account, nil
}
