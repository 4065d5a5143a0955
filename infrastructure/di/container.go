package di

import (
	"net/http"

	"go.uber.org/zap"

	"finsync/application/services"
	"finsync/infrastructure/config"
	"finsync/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Collector
	Sync       *services.SyncService
	Categories *services.CategoryService
	Auth       *services.AuthService
	Handler    http.Handler
}
