package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/config"
	apperrors "github.com/3leaps/rqlens/internal/errors"
	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/internal/server"
	"github.com/3leaps/rqlens/internal/server/handlers"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health and version endpoints",
	Long: `Run an HTTP server exposing /health, /health/live, /health/ready,
/health/startup and /version. Readiness fails while Redis is unreachable.

Examples:
  rqlens serve
  rqlens serve --host 0.0.0.0 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
}

// signalHealthChecker fails once the command context has been canceled by
// a shutdown signal, so readiness drops while the server drains.
type signalHealthChecker struct {
	ctx context.Context
}

func (c signalHealthChecker) CheckHealth(ctx context.Context) error {
	if c.ctx == nil {
		return nil
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// identityHealthChecker verifies the resolved application identity.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// redisHealthChecker pings the store.
type redisHealthChecker struct {
	store interface {
		Ping(ctx context.Context) error
	}
}

func (c redisHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis store not configured")
	}
	return c.store.Ping(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}
	identity := GetAppIdentity()
	if identity == nil {
		identity = &config.DefaultIdentity
	}

	if err := observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(apperrors.ExitFailure, "failed to initialize server logger", err)
	}
	logger := observability.ServerLogger

	host, port := cfg.Server.Host, cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	store, err := rqstore.Connect(storeOptions(cfg))
	if err != nil {
		return commandError("invalid redis configuration", err)
	}
	defer func() { _ = store.Close() }()

	handlers.InitHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("signals", signalHealthChecker{ctx: ctx})
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		hm.RegisterChecker("redis", redisHealthChecker{store: store})
	}

	srv := server.New(host, port, server.WithTimeouts(server.Timeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
		Idle:  cfg.Server.IdleTimeout,
	}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(apperrors.ExitFailure, fmt.Sprintf("server failed on %s", srv.Addr()), err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(apperrors.ExitFailure, "graceful shutdown failed", err)
	}
	return <-errCh
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
