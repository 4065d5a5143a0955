package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/interfaces/http/rest/handlers"
	"finsync/interfaces/http/rest/middleware"
	"finsync/pkg/auth"
	"finsync/pkg/common"
	apperrors "finsync/pkg/errors"
	"finsync/pkg/observability"
)

// RouterConfig carries the settings the router needs from configuration
type RouterConfig struct {
	MaxBodyBytes    int64
	EnableCORS      bool
	CORSOrigins     []string
	EnableMetrics   bool
	AuthRateLimit   int
	AuthRateWindow  time.Duration
	ReadinessBudget time.Duration
}

// Router creates and configures the HTTP router
type Router struct {
	cfg        RouterConfig
	sync       handlers.SyncUseCases
	categories handlers.CategoryUseCases
	accounts   handlers.AuthUseCases
	tokens     middleware.TokenValidator
	limiter    auth.RateLimiter
	pinger     ports.Pinger
	errors     *apperrors.ErrorHandler
	metrics    *observability.Collector
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg RouterConfig,
	sync handlers.SyncUseCases,
	categories handlers.CategoryUseCases,
	accounts handlers.AuthUseCases,
	tokens middleware.TokenValidator,
	limiter auth.RateLimiter,
	pinger ports.Pinger,
	errs *apperrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	if cfg.ReadinessBudget <= 0 {
		cfg.ReadinessBudget = 2 * time.Second
	}
	return &Router{
		cfg:        cfg,
		sync:       sync,
		categories: categories,
		accounts:   accounts,
		tokens:     tokens,
		limiter:    limiter,
		pinger:     pinger,
		errors:     errs,
		metrics:    metrics,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger, rt.metrics))
	router.Use(rt.errors.Middleware)

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.EnableMetrics && rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	syncHandler := handlers.NewSyncHandler(rt.sync, rt.errors, rt.logger, rt.cfg.MaxBodyBytes)
	categoryHandler := handlers.NewCategoryHandler(rt.categories, rt.errors, rt.logger)
	authHandler := handlers.NewAuthHandler(rt.accounts, rt.errors, rt.logger)
	authenticate := middleware.Authenticate(rt.tokens, rt.errors, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(rt.rateLimit("auth_register")).Post("/register", authHandler.Register)
			r.With(rt.rateLimit("auth_login")).Post("/login", authHandler.Login)
			r.With(authenticate).Get("/me", authHandler.Me)
			r.With(authenticate).Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/sync", func(r chi.Router) {
				r.Get("/pull", syncHandler.Pull)
				r.Post("/push", syncHandler.Push)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", categoryHandler.List)
				r.Post("/", categoryHandler.Create)
				r.Patch("/{categoryID}", categoryHandler.Update)
				r.Delete("/{categoryID}", categoryHandler.Delete)
			})
		})
	})

	return router
}

func (rt *Router) rateLimit(scope string) func(http.Handler) http.Handler {
	if rt.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(rt.limiter, middleware.RateLimitPolicy{
		Scope:  scope,
		Limit:  rt.cfg.AuthRateLimit,
		Window: rt.cfg.AuthRateWindow.String(),
	}, rt.errors, rt.logger)
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck pings the store backend
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.pinger != nil {
		ctx, cancel := context.WithTimeout(req.Context(), rt.cfg.ReadinessBudget)
		defer cancel()
		if err := rt.pinger.Ping(ctx); err != nil {
			rt.logger.Warn("readiness check failed", zap.Error(err))
			common.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
