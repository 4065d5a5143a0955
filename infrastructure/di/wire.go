//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"finsync/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainRules,
	ProvideMetrics,
	ProvideTracer,
	ProvideBackend,
	ProvideSnapshotStore,
	ProvideCategoryDirectory,
	ProvideAccountDirectory,
	ProvideLocker,
	ProvidePinger,
	ProvideEventPublisher,
	ProvideRateLimiter,
	ProvideJWTManager,
	ProvidePasswordHasher,
	ProvideMigrationEngine,
	ProvideResolver,
	ProvideDocumentValidator,
	ProvideSyncService,
	ProvideCategoryService,
	ProvideAuthService,
	ProvideErrorHandler,
	ProvideRouter,
	ProvideHTTPHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
