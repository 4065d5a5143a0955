// Command finsync is a terminal client for a finsync server. It keeps the
// ledger in the cloud while signed in and in a local SQLite file otherwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finsync/client/apiclient"
	"finsync/client/localstore"
	"finsync/client/session"
)

var (
	cfgFile string
	logger  = zap.NewNop()

	rootCmd = &cobra.Command{
		Use:               "finsync",
		Short:             "Personal finance ledger with cloud sync",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/finsync/config.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "finsync server URL")
	rootCmd.PersistentFlags().String("data", "", "local database path (default: $HOME/.config/finsync/client.db)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("debounce", 800*time.Millisecond, "quiet period before a change is pushed")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("sync.debounce", rootCmd.PersistentFlags().Lookup("debounce"))

	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(offlineCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pullCmd())
	rootCmd.AddCommand(pushCmd())
	rootCmd.AddCommand(forcePushCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(summaryCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	_ = logger.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "finsync")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetDefault("data", filepath.Join(configDir, "client.db"))
	viper.SetEnvPrefix("FINSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	if viper.GetString("data") == "" {
		viper.Set("data", filepath.Join(configDir, "client.db"))
	}

	return setupLogging(viper.GetString("logging.level"))
}

func setupLogging(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = l
	return nil
}

// openApp opens the local store and starts the sessions. A saved login is
// restored and its first pull awaited; changes an earlier run could not send
// are pushed after it. The returned func flushes pending
// changes and releases the store.
func openApp(ctx context.Context) (*session.App, func(), error) {
	store, err := localstore.Open(ctx, viper.GetString("data"))
	if err != nil {
		return nil, nil, err
	}

	api := apiclient.NewClient(viper.GetString("server"), apiclient.WithLogger(logger.Named("api")))
	cfg := session.DefaultSyncConfig()
	if d := viper.GetDuration("sync.debounce"); d > 0 {
		cfg.Debounce = d
	}
	app := session.NewApp(api, store, cfg, logger)
	if err := app.Start(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	if app.Auth.Online() {
		// Waits for the pull Start began, retrying it once if it failed.
		if err := app.Sync.Hydrate(ctx); err != nil {
			logger.Warn("Initial pull failed", zap.Error(err))
		}
	}

	closeFn := func() {
		select {
		case <-app.Close():
		case <-time.After(10 * time.Second):
			logger.Warn("Timed out waiting for pending changes to reach the server")
		}
		_ = store.Close()
	}
	return app, closeFn, nil
}

// requireOnline fails commands that only make sense while signed in
func requireOnline(app *session.App) error {
	if !app.Auth.Online() {
		return fmt.Errorf("not signed in; run 'finsync login' first")
	}
	return nil
}

// requireLedger fails commands that read or change the ledger while signed in
// but without a cloud copy: the local one would be an empty placeholder.
func requireLedger(app *session.App) error {
	if app.Auth.Online() && !app.Sync.Hydrated() {
		return fmt.Errorf("the cloud ledger could not be fetched (%v); try again when the server is reachable", app.Sync.LastError())
	}
	return nil
}
