package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsync/infrastructure/config"
	"finsync/infrastructure/messaging"
	"finsync/infrastructure/persistence/memory"
	"finsync/pkg/auth"
)

func TestProvideLogger_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsync.log")
	cfg := &config.Config{Environment: "development", LogLevel: "info", LogFile: path}

	logger, cleanup, err := ProvideLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello file")
	cleanup()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hello file")
}

func TestProvideLogger_RejectsUnknownLevel(t *testing.T) {
	_, _, err := ProvideLogger(&config.Config{Environment: "development", LogLevel: "loud"})

	assert.Error(t, err)
}

func TestProvideBackend_DefaultsToMemory(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.BackendMemory, LockWaitLimit: time.Second}

	backend, cleanup, err := ProvideBackend(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.SnapshotStore{}, backend.Snapshots)
	assert.NoError(t, backend.Pinger.Ping(context.Background()))
	assert.IsType(t, &auth.SlidingWindowLimiter{}, ProvideRateLimiter(cfg, backend))
}

func TestProvideEventPublisher_LogsWithoutBus(t *testing.T) {
	publisher, err := ProvideEventPublisher(context.Background(), &config.Config{}, zap.NewNop())

	require.NoError(t, err)
	assert.IsType(t, &messaging.LogPublisher{}, publisher)
}

func TestProvideMetrics_Disabled(t *testing.T) {
	assert.Nil(t, ProvideMetrics(&config.Config{EnableMetrics: false}))
	assert.NotNil(t, ProvideMetrics(&config.Config{EnableMetrics: true}))
}
