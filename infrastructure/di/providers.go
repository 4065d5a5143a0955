package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"finsync/application/migration"
	"finsync/application/ports"
	"finsync/application/services"
	domainconfig "finsync/domain/config"
	"finsync/domain/core/validators"
	"finsync/domain/versioning"
	"finsync/infrastructure/config"
	"finsync/infrastructure/messaging"
	"finsync/infrastructure/messaging/eventbridge"
	"finsync/infrastructure/persistence/dynamodb"
	"finsync/infrastructure/persistence/memory"
	"finsync/infrastructure/persistence/postgres"
	"finsync/interfaces/http/rest"
	"finsync/interfaces/http/rest/middleware"
	"finsync/pkg/auth"
	apperrors "finsync/pkg/errors"
	"finsync/pkg/observability"
)

// ProvideLogger creates the process logger. Production uses JSON output,
// development the console encoder. LOG_FILE adds a rotated file sink.
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, err
	}

	if cfg.LogFile != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(sink),
			level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	logger = logger.With(zap.String("environment", cfg.Environment))
	if cfg.IsLambda {
		logger = logger.With(zap.String("function", cfg.LambdaFunctionName))
	}

	cleanup := func() { _ = logger.Sync() }
	return logger, cleanup, nil
}

// ProvideDomainRules applies configuration overrides to the domain defaults
func ProvideDomainRules(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.DomainRules()
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("finsync")
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("finsync", cfg.EnableTracing)
}

// Backend groups the storage adapters of one store backend
type Backend struct {
	Snapshots  ports.SnapshotStore
	Categories ports.CategoryDirectory
	Accounts   ports.AccountDirectory
	Locker     ports.Locker
	Pinger     ports.Pinger

	// set for the dynamodb backend; shared with the distributed rate limiter
	dynamo dynamodb.API
}

// ProvideBackend opens the configured store backend
func ProvideBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		snapshots := postgres.NewSnapshotStore(pool)
		logger.Info("Using PostgreSQL backend")
		return &Backend{
			Snapshots:  snapshots,
			Categories: postgres.NewCategoryDirectory(pool),
			Accounts:   postgres.NewAccountDirectory(pool),
			Locker:     postgres.NewAdvisoryLocker(pool, cfg.LockWaitLimit),
			Pinger:     snapshots,
		}, pool.Close, nil

	case config.BackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		snapshots := dynamodb.NewSnapshotStore(client, cfg.DynamoDBTable, logger)
		logger.Info("Using DynamoDB backend", zap.String("table", cfg.DynamoDBTable))
		return &Backend{
			Snapshots:  snapshots,
			Categories: dynamodb.NewCategoryDirectory(client, cfg.DynamoDBTable, logger),
			Accounts:   dynamodb.NewAccountDirectory(client, cfg.DynamoDBTable),
			Locker:     dynamodb.NewLocker(client, cfg.DynamoDBTable, cfg.LockDuration, cfg.LockWaitLimit, logger),
			Pinger:     snapshots,
			dynamo:     client,
		}, func() {}, nil

	default:
		snapshots := memory.NewSnapshotStore()
		logger.Warn("Using in-memory backend; data is lost on restart")
		return &Backend{
			Snapshots:  snapshots,
			Categories: memory.NewCategoryDirectory(),
			Accounts:   memory.NewAccountDirectory(),
			Locker:     memory.NewLocker(cfg.LockWaitLimit),
			Pinger:     snapshots,
		}, func() {}, nil
	}
}

func ProvideSnapshotStore(b *Backend) ports.SnapshotStore         { return b.Snapshots }
func ProvideCategoryDirectory(b *Backend) ports.CategoryDirectory { return b.Categories }
func ProvideAccountDirectory(b *Backend) ports.AccountDirectory   { return b.Accounts }
func ProvideLocker(b *Backend) ports.Locker                       { return b.Locker }
func ProvidePinger(b *Backend) ports.Pinger                       { return b.Pinger }

// ProvideEventPublisher publishes to EventBridge when a bus is configured and
// to the log otherwise
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if cfg.EventBusName == "" {
		return messaging.NewLogPublisher(logger), nil
	}
	client, err := eventbridge.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger), nil
}

// ProvideRateLimiter counts in DynamoDB when that backend is active so the
// limit holds across Lambda instances
func ProvideRateLimiter(cfg *config.Config, b *Backend) auth.RateLimiter {
	if b.dynamo != nil {
		return auth.NewDistributedRateLimiter(b.dynamo, cfg.DynamoDBTable, cfg.AuthRateLimit, cfg.AuthRateLimitWindow, "AUTH")
	}
	return auth.NewSlidingWindowLimiter(cfg.AuthRateLimit, cfg.AuthRateLimitWindow)
}

// ProvideJWTManager creates the token issuer and validator
func ProvideJWTManager(cfg *config.Config) (*auth.JWTManager, error) {
	var audience []string
	if cfg.JWTAudience != "" {
		audience = []string{cfg.JWTAudience}
	}
	return auth.NewJWTManager(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  audience,
		TTL:       cfg.JWTTTL,
	})
}

func ProvidePasswordHasher(cfg *config.Config) *auth.PasswordHasher {
	return auth.NewPasswordHasher(cfg.BcryptCost)
}

func ProvideMigrationEngine(logger *zap.Logger, metrics *observability.Collector) *migration.Engine {
	return migration.NewDefaultEngine(logger, metrics)
}

func ProvideResolver(rules *domainconfig.DomainConfig) *versioning.Resolver {
	return versioning.NewResolver(rules.VersionPolicy)
}

func ProvideDocumentValidator(rules *domainconfig.DomainConfig) *validators.DocumentValidator {
	return validators.NewDocumentValidator(rules.MaxDocumentBytes)
}

func ProvideSyncService(
	store ports.SnapshotStore,
	categories ports.CategoryDirectory,
	engine *migration.Engine,
	resolver *versioning.Resolver,
	validator *validators.DocumentValidator,
	publisher ports.EventPublisher,
	tracer *observability.Tracer,
	metrics *observability.Collector,
	logger *zap.Logger,
	rules *domainconfig.DomainConfig,
) *services.SyncService {
	return services.NewSyncService(store, categories, engine, resolver, validator, publisher, tracer, metrics, logger, rules.WriteRetries)
}

func ProvideCategoryService(
	categories ports.CategoryDirectory,
	store ports.SnapshotStore,
	locker ports.Locker,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
	rules *domainconfig.DomainConfig,
) *services.CategoryService {
	return services.NewCategoryService(categories, store, locker, publisher, metrics, logger, rules.WriteRetries)
}

func ProvideAuthService(
	accounts ports.AccountDirectory,
	hasher *auth.PasswordHasher,
	tokens *auth.JWTManager,
	rules *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.AuthService {
	verifier := services.NewPasswordVerifier(accounts, hasher)
	return services.NewAuthService(accounts, verifier, hasher, tokens, rules, logger)
}

func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.Debug)
}

// ProvideRouter builds the REST router
func ProvideRouter(
	cfg *config.Config,
	syncService *services.SyncService,
	categoryService *services.CategoryService,
	authService *services.AuthService,
	tokens *auth.JWTManager,
	limiter auth.RateLimiter,
	pinger ports.Pinger,
	errs *apperrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(
		rest.RouterConfig{
			MaxBodyBytes:   cfg.MaxBodyBytes,
			EnableCORS:     cfg.EnableCORS,
			CORSOrigins:    cfg.CORSOrigins,
			EnableMetrics:  cfg.EnableMetrics,
			AuthRateLimit:  cfg.AuthRateLimit,
			AuthRateWindow: cfg.AuthRateLimitWindow,
		},
		syncService,
		categoryService,
		authService,
		middleware.TokenValidator(tokens),
		limiter,
		pinger,
		errs,
		metrics,
		logger,
	)
}

// ProvideHTTPHandler sets up routes
func ProvideHTTPHandler(router *rest.Router) http.Handler {
	return router.Setup()
}
