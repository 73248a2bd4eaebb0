package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/config"
	apperrors "github.com/3leaps/rqlens/internal/errors"
	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/pkg/introspect"
	"github.com/3leaps/rqlens/pkg/jobstore"
	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

var doctorSkipRedis bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, the configuration and the Redis
connection, and report what rqlens can see of the RQ keyspace.

Examples:
  rqlens doctor
  rqlens doctor --redis-url redis://cache:6379/1
  rqlens doctor --skip-redis`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipRedis, "skip-redis", false, "skip the Redis connectivity checks")
}

type doctorReport struct {
	log   *zap.Logger
	total int
	n     int
	ok    bool
}

func (r *doctorReport) pass(check, detail string, fields ...zap.Field) {
	r.n++
	r.log.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", r.n, r.total, check, detail), fields...)
}

func (r *doctorReport) warn(check, detail string, fields ...zap.Field) {
	r.n++
	r.ok = false
	r.log.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", r.n, r.total, check, detail), fields...)
}

func (r *doctorReport) fail(check, detail string, fields ...zap.Field) {
	r.n++
	r.ok = false
	r.log.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", r.n, r.total, check, detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	identity := GetAppIdentity()
	if identity == nil {
		identity = &config.DefaultIdentity
	}
	banner := identity.BinaryName + " doctor"

	log := observability.CLILogger
	log.Info("=== " + banner + " ===")
	log.Info("Running diagnostic checks...")

	report := &doctorReport{log: log, total: 6, ok: true}
	if !doctorSkipRedis {
		report.total += 2
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		report.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		report.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
	}

	version := crucible.GetVersion()
	if version.Crucible != "" {
		report.pass("Crucible access", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))
	} else {
		report.fail("Crucible access", "cannot access Crucible")
	}
	if version.Gofulmen != "" {
		report.pass("Gofulmen access", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		report.fail("Gofulmen access", "cannot access Gofulmen")
	}

	cfg, err := currentConfig(ctx)
	if err != nil {
		report.fail("configuration", err.Error(), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}
	report.pass("configuration", fmt.Sprintf("prefix %q, page size %d", cfg.Redis.KeyPrefix, cfg.Jobs.PageSize))

	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	report.pass("data directory", dataDir, zap.String("data_dir", dataDir))

	report.pass("environment", runtime.GOOS+"/"+runtime.GOARCH,
		zap.String("os", runtime.GOOS), zap.String("arch", runtime.GOARCH))

	var failure error
	if !doctorSkipRedis {
		failure = doctorRedis(ctx, report, cfg)
	}

	if report.ok {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", banner))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("=== End Diagnostics ===")
	return failure
}

func doctorRedis(ctx context.Context, report *doctorReport, cfg *config.Config) error {
	target := redactURL(cfg.Redis.URL)

	start := time.Now()
	store, err := rqstore.Open(ctx, storeOptions(cfg))
	if err != nil {
		report.fail("Redis connectivity", target, zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "cannot reach redis at "+target, err)
	}
	defer func() { _ = store.Close() }()
	report.pass("Redis connectivity", fmt.Sprintf("%s (%s)", target, time.Since(start).Round(time.Millisecond)),
		zap.String("redis_url", target))

	svc := introspect.NewService(
		jobstore.New(store, rq.NewKeyspace(cfg.Redis.KeyPrefix), jobstore.WithLogger(report.log)),
		serviceConfig(cfg), report.log)

	queues, err := svc.KnownQueues(ctx)
	if err != nil {
		report.fail("RQ keyspace", err.Error(), zap.Error(err))
		return exitError(apperrors.ExitCode(err), "cannot read the RQ keyspace", err)
	}
	workers, err := svc.ListWorkers(ctx)
	if err != nil {
		report.fail("RQ keyspace", err.Error(), zap.Error(err))
		return exitError(apperrors.ExitCode(err), "cannot read the RQ keyspace", err)
	}
	stale := 0
	for _, w := range workers {
		if w.PossiblyDead {
			stale++
		}
	}
	detail := fmt.Sprintf("%d queue(s), %d worker(s)", len(queues), len(workers))
	if stale > 0 {
		report.warn("RQ keyspace", fmt.Sprintf("%s, %d possibly dead", detail, stale),
			zap.Int("queues", len(queues)), zap.Int("workers", len(workers)), zap.Int("stale_workers", stale))
		return nil
	}
	report.pass("RQ keyspace", detail, zap.Int("queues", len(queues)), zap.Int("workers", len(workers)))
	return nil
}
