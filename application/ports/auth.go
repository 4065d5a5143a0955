package ports

import (
	"context"
	"time"

	"finsync/domain/core/entities"
)

// PasswordHasher hashes and checks passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// CredentialVerifier turns an email and password into an account identity
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*entities.Account, error)
}

// TokenIssuer issues bearer tokens for an account
type TokenIssuer interface {
	GenerateToken(userID, email string) (string, time.Time, error)
}
