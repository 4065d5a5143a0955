package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finsync/pkg/auth"
	apperrors "finsync/pkg/errors"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and stores the account in the
// request context. Failures are always 401 so clients can re-authenticate.
func Authenticate(validator TokenValidator, errs *apperrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				errs.Handle(w, r, unauthorized("missing or malformed authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err), zap.String("path", r.URL.Path))
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					errs.Handle(w, r, unauthorized("token has expired"))
				case errors.Is(err, auth.ErrInvalidSignature):
					errs.Handle(w, r, unauthorized("invalid token signature"))
				default:
					errs.Handle(w, r, unauthorized("invalid token"))
				}
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(message string) error {
	return apperrors.NewUnauthorizedError(message).WithCode(apperrors.CodeAuthenticationFailed)
}
