// Package config loads rqlens configuration.
//
// Values are layered, lowest precedence first: built-in defaults, config
// files (system, user, project, explicit), RQLENS_* environment variables,
// and runtime overrides supplied by the caller (usually CLI flags).
package config

import "time"

// Identity names the application for config discovery and env mapping.
type Identity struct {
	BinaryName string
	Vendor     string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the identity of the rqlens binary.
var DefaultIdentity = Identity{
	BinaryName: "rqlens",
	Vendor:     "3leaps",
	EnvPrefix:  "RQLENS_",
	ConfigName: "rqlens",
}

// Config is the fully resolved configuration.
type Config struct {
	Redis      RedisConfig      `mapstructure:"redis" json:"redis"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
	Health     HealthConfig     `mapstructure:"health" json:"health"`
	Output     OutputConfig     `mapstructure:"output" json:"output"`
	Jobs       JobsConfig       `mapstructure:"jobs" json:"jobs"`
	Workers    WorkersConfig    `mapstructure:"workers" json:"workers"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery" json:"discovery"`
	BulkDelete BulkDeleteConfig `mapstructure:"bulk_delete" json:"bulk_delete"`
}

type RedisConfig struct {
	URL            string        `mapstructure:"url" json:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	PoolSize       int           `mapstructure:"pool_size" json:"pool_size"`
	KeyPrefix      string        `mapstructure:"key_prefix" json:"key_prefix"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	Profile string `mapstructure:"profile" json:"profile"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

type OutputConfig struct {
	Format string `mapstructure:"format" json:"format"`
}

type JobsConfig struct {
	PageSize int `mapstructure:"page_size" json:"page_size"`
	// Truncate is the display length of function references and args in
	// listings. Zero disables truncation.
	Truncate int `mapstructure:"truncate" json:"truncate"`
}

type WorkersConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after" json:"stale_after"`
}

type DiscoveryConfig struct {
	Scan      bool     `mapstructure:"scan" json:"scan"`
	ScanCount int64    `mapstructure:"scan_count" json:"scan_count"`
	Queues    []string `mapstructure:"queues" json:"queues"`
}

type BulkDeleteConfig struct {
	Concurrency int     `mapstructure:"concurrency" json:"concurrency"`
	Rate        float64 `mapstructure:"rate" json:"rate"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"redis": map[string]any{
			"url":             "redis://localhost:6379/0",
			"request_timeout": "5s",
			"dial_timeout":    "2s",
			"pool_size":       10,
			"key_prefix":      "rq:",
		},
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "structured",
		},
		"health": map[string]any{
			"enabled": true,
		},
		"output": map[string]any{
			"format": "table",
		},
		"jobs": map[string]any{
			"page_size": 10,
			"truncate":  80,
		},
		"workers": map[string]any{
			"stale_after": "420s",
		},
		"discovery": map[string]any{
			"scan":       false,
			"scan_count": 500,
			"queues":     []string{},
		},
		"bulk_delete": map[string]any{
			"concurrency": 8,
			"rate":        0,
		},
	}
}
