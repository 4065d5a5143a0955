package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"finsync/pkg/auth"
	apperrors "finsync/pkg/errors"
)

// RateLimitPolicy describes the limit enforced for one endpoint
type RateLimitPolicy struct {
	Scope  string
	Limit  int
	Window string
}

// RateLimit counts requests per client IP and scope. Limiter failures fail open.
func RateLimit(limiter auth.RateLimiter, policy RateLimitPolicy, errs *apperrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := policy.Scope + "#" + clientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("scope", policy.Scope))
			}
			if !allowed {
				errs.Handle(w, r, apperrors.NewRateLimitError(policy.Limit, policy.Window).
					WithCode(apperrors.CodeRateLimitExceeded))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
