package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRepoRootForTest(t *testing.T) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("could not locate repo root containing go.mod from %s", cwd)
	return ""
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
		assert.Equal(t, 5*time.Second, cfg.Redis.RequestTimeout)
		assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
		assert.Equal(t, "rq:", cfg.Redis.KeyPrefix)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.True(t, cfg.Health.Enabled)
		assert.Equal(t, "table", cfg.Output.Format)

		assert.Equal(t, 10, cfg.Jobs.PageSize)
		assert.Equal(t, 80, cfg.Jobs.Truncate)
		assert.Equal(t, 420*time.Second, cfg.Workers.StaleAfter)
		assert.False(t, cfg.Discovery.Scan)
		assert.Equal(t, int64(500), cfg.Discovery.ScanCount)
		assert.Empty(t, cfg.Discovery.Queues)
		assert.Equal(t, 8, cfg.BulkDelete.Concurrency)
		assert.Zero(t, cfg.BulkDelete.Rate)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("RQLENS_PORT", "3000")
		t.Setenv("RQLENS_LOG_LEVEL", "warn")
		t.Setenv("RQLENS_HEALTH_ENABLED", "false")
		t.Setenv("RQLENS_REDIS_URL", "redis://cache:6380/2")
		t.Setenv("RQLENS_QUEUES", "high, default,,low")
		t.Setenv("RQLENS_DELETE_RATE", "12.5")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Health.Enabled)
		assert.Equal(t, "redis://cache:6380/2", cfg.Redis.URL)
		assert.Equal(t, []string{"high", "default", "low"}, cfg.Discovery.Queues)
		assert.Equal(t, 12.5, cfg.BulkDelete.Rate)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("RQLENS_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ExplicitFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
redis:
  key_prefix: "myrq:"
jobs:
  page_size: 25
discovery:
  scan: true
  queues: [alpha, beta]
`), 0o600))
		t.Setenv("RQLENS_PAGE_SIZE", "30")

		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "myrq:", cfg.Redis.KeyPrefix)
		assert.Equal(t, 30, cfg.Jobs.PageSize, "env beats file")
		assert.True(t, cfg.Discovery.Scan)
		assert.Equal(t, []string{"alpha", "beta"}, cfg.Discovery.Queues)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := LoadFile(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		overrides map[string]any
		path      string
	}{
		{"bad log level", map[string]any{"logging": map[string]any{"level": "loud"}}, "/logging/level"},
		{"zero page size", map[string]any{"jobs": map[string]any{"page_size": 0}}, "/jobs/page_size"},
		{"port out of range", map[string]any{"server": map[string]any{"port": 70000}}, "/server/port"},
		{"http url", map[string]any{"redis": map[string]any{"url": "http://localhost"}}, "/redis/url"},
		{"empty prefix", map[string]any{"redis": map[string]any{"key_prefix": ""}}, "/redis/key_prefix"},
		{"unknown output", map[string]any{"output": map[string]any{"format": "xml"}}, "/output/format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(ctx, tt.overrides)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.NotEmpty(t, verrs)
			assert.Contains(t, verrs[0].Path, tt.path)
		})
	}
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)

	cfg2, err := Load(ctx, map[string]any{
		"server": map[string]any{"port": cfg1.Server.Port + 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, cfg1.Server.Port+1000, cfg2.Server.Port)
	assert.Equal(t, cfg2.Server.Port, GetConfig().Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "RQLENS_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	for _, want := range []string{"RQLENS_REDIS_URL", "RQLENS_LOG_LEVEL", "RQLENS_PORT", "RQLENS_HOST", "RQLENS_PAGE_SIZE"} {
		assert.True(t, names[want], "%s must be mapped", want)
	}
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("RQLENS_REQUEST_TIMEOUT", "750ms")
	t.Setenv("RQLENS_STALE_AFTER", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Redis.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Workers.StaleAfter)
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestGetUserConfigPathsNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() { _, _ = Load(context.Background()) }()

	assert.Empty(t, getUserConfigPaths())
	assert.Empty(t, getEnvSpecs())
	assert.Nil(t, GetConfig())
}

func TestFindProjectRoot(t *testing.T) {
	repoRoot := findRepoRootForTest(t)

	t.Run("NoCI", func(t *testing.T) {
		t.Setenv("CI", "")
		t.Setenv("GITHUB_ACTIONS", "")
		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.Equal(t, repoRoot, root)
	})

	t.Run("CITrueButEmptyBoundaryVars", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("RQLENS_WORKSPACE_ROOT", "")
		t.Setenv("GITHUB_WORKSPACE", "")
		t.Setenv("CI_PROJECT_DIR", "")
		t.Setenv("WORKSPACE", "")

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.Equal(t, repoRoot, root)
	})

	t.Run("CITrueWithRelativeBoundary", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("RQLENS_WORKSPACE_ROOT", "./relative/path")

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("CITrueWithBoundaryNotContainingCwd", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("RQLENS_WORKSPACE_ROOT", t.TempDir())

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("GitHubActionsEnvVar", func(t *testing.T) {
		t.Setenv("GITHUB_ACTIONS", "true")
		t.Setenv("RQLENS_WORKSPACE_ROOT", "")
		t.Setenv("GITHUB_WORKSPACE", repoRoot)

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.Equal(t, repoRoot, root)
	})
}
