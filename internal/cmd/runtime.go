package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/config"
	apperrors "github.com/3leaps/rqlens/internal/errors"
	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/pkg/introspect"
	"github.com/3leaps/rqlens/pkg/jobstore"
	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// errReadOnly is returned by destructive commands under --readonly.
var errReadOnly = errors.New("readonly mode: refusing to delete")

// currentConfig returns the loaded config, falling back to defaults when a
// command runs without the root pre-run hook (tests).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load(ctx)
}

func storeOptions(cfg *config.Config) rqstore.Options {
	return rqstore.Options{
		URL:         cfg.Redis.URL,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.RequestTimeout,
		PoolSize:    cfg.Redis.PoolSize,
		ScanCount:   cfg.Discovery.ScanCount,
		PingTimeout: cfg.Redis.DialTimeout,
	}
}

func serviceConfig(cfg *config.Config) introspect.Config {
	return introspect.Config{
		RequestTimeout:    cfg.Redis.RequestTimeout,
		PageSize:          cfg.Jobs.PageSize,
		StaleAfter:        cfg.Workers.StaleAfter,
		DiscoveryScan:     cfg.Discovery.Scan,
		StaticQueues:      cfg.Discovery.Queues,
		DeleteConcurrency: cfg.BulkDelete.Concurrency,
		DeleteRate:        cfg.BulkDelete.Rate,
	}
}

// openService connects to Redis and assembles the introspection service.
// The returned func releases the connection pool.
func openService(ctx context.Context) (*introspect.Service, *config.Config, func(), error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, nil, nil, exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}

	store, err := rqstore.Open(ctx, storeOptions(cfg))
	if err != nil {
		return nil, nil, nil, exitError(apperrors.ExitCode(err),
			fmt.Sprintf("cannot connect to redis at %s", redactURL(cfg.Redis.URL)), err)
	}

	logger := observability.CLILogger
	repo := jobstore.New(store, rq.NewKeyspace(cfg.Redis.KeyPrefix),
		jobstore.WithLogger(logger),
		jobstore.WithTruncate(cfg.Jobs.Truncate),
	)
	svc := introspect.NewService(repo, serviceConfig(cfg), logger)
	logger.Debug("connected to redis",
		zap.String("redis_url", redactURL(cfg.Redis.URL)),
		zap.Duration("request_timeout", cfg.Redis.RequestTimeout))

	return svc, cfg, func() { _ = store.Close() }, nil
}

// requireWritable rejects destructive commands under --readonly or
// RQLENS_READONLY.
func requireWritable() error {
	if readOnly || viper.GetBool("readonly") {
		return exitError(foundry.ExitInvalidArgument, "delete blocked", errReadOnly)
	}
	return nil
}

// redactURL hides the password of a Redis URL for logs and messages.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// commandError maps a service error to an exit error.
func commandError(message string, err error) error {
	return exitError(apperrors.ExitCode(err), message, err)
}
