package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
)

// EnvSpec maps one environment variable to a dotted config path.
type EnvSpec struct {
	Name string
	Path string
	// List splits the value on commas.
	List bool
}

// envBindings are the variables read from the environment, without prefix.
var envBindings = []EnvSpec{
	{Name: "REDIS_URL", Path: "redis.url"},
	{Name: "REQUEST_TIMEOUT", Path: "redis.request_timeout"},
	{Name: "DIAL_TIMEOUT", Path: "redis.dial_timeout"},
	{Name: "POOL_SIZE", Path: "redis.pool_size"},
	{Name: "KEY_PREFIX", Path: "redis.key_prefix"},
	{Name: "HOST", Path: "server.host"},
	{Name: "PORT", Path: "server.port"},
	{Name: "READ_TIMEOUT", Path: "server.read_timeout"},
	{Name: "WRITE_TIMEOUT", Path: "server.write_timeout"},
	{Name: "IDLE_TIMEOUT", Path: "server.idle_timeout"},
	{Name: "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
	{Name: "LOG_LEVEL", Path: "logging.level"},
	{Name: "LOG_PROFILE", Path: "logging.profile"},
	{Name: "HEALTH_ENABLED", Path: "health.enabled"},
	{Name: "OUTPUT", Path: "output.format"},
	{Name: "PAGE_SIZE", Path: "jobs.page_size"},
	{Name: "TRUNCATE", Path: "jobs.truncate"},
	{Name: "STALE_AFTER", Path: "workers.stale_after"},
	{Name: "DISCOVERY_SCAN", Path: "discovery.scan"},
	{Name: "SCAN_COUNT", Path: "discovery.scan_count"},
	{Name: "QUEUES", Path: "discovery.queues", List: true},
	{Name: "DELETE_CONCURRENCY", Path: "bulk_delete.concurrency"},
	{Name: "DELETE_RATE", Path: "bulk_delete.rate"},
}

// Load resolves configuration without an explicit config file.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile resolves configuration, merging path (when non-empty) above the
// discovered config files. The result is validated and stored for GetConfig.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}
	configMu.Unlock()

	v := viper.New()
	if err := v.MergeConfigMap(Defaults()); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	files := configFilePaths()
	if path != "" {
		files = append(files, path)
	}
	for _, f := range files {
		if err := mergeFile(v, f, f == path); err != nil {
			return nil, err
		}
	}

	if env := envLayer(); len(env) > 0 {
		if err := v.MergeConfigMap(env); err != nil {
			return nil, fmt.Errorf("apply environment: %w", err)
		}
	}
	for _, o := range overrides {
		if len(o) == 0 {
			continue
		}
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// GetIdentity returns the application identity, or nil before the first Load.
func GetIdentity() *Identity {
	configMu.RLock()
	defer configMu.RUnlock()
	return appIdentity
}

func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// configFilePaths lists candidate config files, lowest precedence first.
func configFilePaths() []string {
	id := GetIdentity()
	if id == nil {
		return nil
	}
	name := id.ConfigName + ".yaml"

	paths := []string{filepath.Join("/etc", id.ConfigName, name)}
	paths = append(paths, getUserConfigPaths()...)
	if root, err := findProjectRoot(); err == nil {
		paths = append(paths, filepath.Join(root, name))
	}
	return paths
}

func getUserConfigPaths() []string {
	id := GetIdentity()
	if id == nil {
		return []string{}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return []string{}
	}
	return []string{filepath.Join(dir, id.ConfigName, id.ConfigName+".yaml")}
}

func getEnvSpecs() []EnvSpec {
	id := GetIdentity()
	if id == nil {
		return []EnvSpec{}
	}
	specs := make([]EnvSpec, len(envBindings))
	for i, b := range envBindings {
		b.Name = id.EnvPrefix + b.Name
		specs[i] = b
	}
	return specs
}

// envLayer builds a nested config map from the environment.
func envLayer() map[string]any {
	out := map[string]any{}
	for _, spec := range getEnvSpecs() {
		val, ok := os.LookupEnv(spec.Name)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		var value any = val
		if spec.List {
			value = splitList(val)
		}
		setPath(out, spec.Path, value)
	}
	return out
}

func setPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	cfg.Redis.URL = strings.TrimSpace(cfg.Redis.URL)
	if cfg.Discovery.Queues == nil {
		cfg.Discovery.Queues = []string{}
	}
}

// findProjectRoot walks up from the working directory to the nearest
// directory holding go.mod or .git. In CI, a workspace variable that
// contains the working directory takes precedence. Without a marker the
// working directory itself is returned.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		for _, name := range []string{"RQLENS_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"} {
			if b := ciBoundary(os.Getenv(name), cwd); b != "" {
				return b, nil
			}
		}
	}

	for dir := cwd; ; dir = filepath.Dir(dir) {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		if filepath.Dir(dir) == dir {
			return cwd, nil
		}
	}
}

func ciBoundary(dir, cwd string) string {
	if dir == "" || !filepath.IsAbs(dir) {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	rel, err := filepath.Rel(dir, cwd)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.Clean(dir)
}
