// Package cmd implements the rqlens command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/config"
	apperrors "github.com/3leaps/rqlens/internal/errors"
	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/internal/server/handlers"
)

var (
	cfgFile  string
	readOnly bool

	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}

	appIdentity *config.Identity
)

// flagOverrides maps persistent flags to the config paths they override.
var flagOverrides = map[string][]string{
	"redis-url":  {"redis", "url"},
	"key-prefix": {"redis", "key_prefix"},
	"timeout":    {"redis", "request_timeout"},
	"log-level":  {"logging", "level"},
	"output":     {"output", "format"},
}

var rootCmd = &cobra.Command{
	Use:   "rqlens",
	Short: "Inspect and manage RQ queues, jobs and workers",
	Long: `rqlens reads the records an RQ deployment keeps in Redis and reports
queue depths, job states and worker activity. It can page through the jobs of
a queue, show a single job in full, and delete jobs or purge whole queues.

Configuration is read from rqlens.yaml, RQLENS_* environment variables and
the flags below, in increasing order of precedence.

Examples:
  rqlens queues
  rqlens jobs list --queue default --state failed
  rqlens jobs show 5a1c6e9e-1d2f-4c55-9b8e-2a2f0c7d9e11
  rqlens workers --output json`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: discovered rqlens.yaml)")
	pf.String("redis-url", "", "Redis URL (redis://, rediss:// or unix://)")
	pf.String("key-prefix", "", "RQ key prefix (default rq:)")
	pf.String("timeout", "", "per-request timeout, e.g. 5s")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.StringP("output", "o", "", "output format: table, json, yaml, jsonl")
	pf.BoolVar(&readOnly, "readonly", false, "refuse commands that delete data")

	_ = viper.BindPFlag("readonly", pf.Lookup("readonly"))
	_ = viper.BindEnv("readonly", "RQLENS_READONLY")
}

// SetVersionInfo records build metadata for the version command and the
// health server.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// GetAppIdentity returns the identity resolved during startup, or nil before
// the first command runs.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// setDefaults seeds the global viper instance with the built-in config layer
// so flag-bound keys such as readonly resolve against the same defaults as
// config.Load.
func setDefaults() {
	for section, values := range config.Defaults() {
		m, ok := values.(map[string]any)
		if !ok {
			viper.SetDefault(section, values)
			continue
		}
		for k, v := range m {
			viper.SetDefault(section+"."+k, v)
		}
	}
	viper.SetDefault("readonly", false)
}

func initRuntime(cmd *cobra.Command, args []string) error {
	setDefaults()

	cfg, err := config.LoadFile(commandContext(cmd), cfgFile, collectOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}
	appIdentity = config.GetIdentity()

	if err := observability.InitCLILogger(appIdentity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(apperrors.ExitFailure, "failed to initialize logger", err)
	}
	observability.CLILogger.Debug("configuration loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("redis_url", redactURL(cfg.Redis.URL)),
		zap.String("key_prefix", cfg.Redis.KeyPrefix),
	)
	return nil
}

func collectOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	for name, path := range flagOverrides {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		section, ok := overrides[path[0]].(map[string]any)
		if !ok {
			section = map[string]any{}
			overrides[path[0]] = section
		}
		section[path[1]] = f.Value.String()
	}
	return overrides
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	code := exitCodeOf(err)
	observability.CLILogger.Error("command failed", zap.Error(err), zap.Int("exit_code", code))
	_, _ = fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return code
}

// cliError carries the exit code chosen by the failing command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

func exitCodeOf(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return apperrors.ExitCode(err)
}
