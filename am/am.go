// Package am ("I am") holds the jobpulse configuration: where the remote job
// API lives, how often to poll it, and whether the controller may start jobs.
package am

import "time"

// Config represents the jobpulse configuration
type Config struct {
	API    APIConfig    `mapstructure:"api" toml:"api" json:"api" yaml:"api"`
	Watch  WatchConfig  `mapstructure:"watch" toml:"watch" json:"watch" yaml:"watch"`
	Server ServerConfig `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// APIConfig configures the remote job API client
type APIConfig struct {
	// e.g. "http://localhost:8675"
	BaseURL string `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url"`

	// Optional bearer token
	Token string `mapstructure:"token" toml:"token,omitempty" json:"token,omitempty" yaml:"token,omitempty"`

	// Per-request timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`

	// Default "/api/jobs"
	ListPath string `mapstructure:"list_path" toml:"list_path" json:"list_path" yaml:"list_path"`

	// GET or POST
	StartMethod string `mapstructure:"start_method" toml:"start_method" json:"start_method" yaml:"start_method"`

	// Template with {id}
	StartPath string `mapstructure:"start_path" toml:"start_path" json:"start_path" yaml:"start_path"`

	BlockPrivateIP bool          `mapstructure:"block_private_ip" toml:"block_private_ip" json:"block_private_ip" yaml:"block_private_ip"`
	Breaker        BreakerConfig `mapstructure:"breaker" toml:"breaker" json:"breaker" yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around remote calls.
// MaxFailures = 0 disables tripping, so a failing API is retried forever.
type BreakerConfig struct {
	MaxFailures        int `mapstructure:"max_failures" toml:"max_failures" json:"max_failures" yaml:"max_failures"`
	OpenTimeoutSeconds int `mapstructure:"open_timeout_seconds" toml:"open_timeout_seconds" json:"open_timeout_seconds" yaml:"open_timeout_seconds"`
}

// WatchConfig configures polling and admission
type WatchConfig struct {
	// Keep only running jobs in the snapshot
	OnlyActive bool `mapstructure:"only_active" toml:"only_active" json:"only_active" yaml:"only_active"`

	// 0 = poll once
	ReloadIntervalMs int `mapstructure:"reload_interval_ms" toml:"reload_interval_ms" json:"reload_interval_ms" yaml:"reload_interval_ms"`

	// Auto-start the next queued job
	Admission bool `mapstructure:"admission" toml:"admission" json:"admission" yaml:"admission"`

	// 0 = unlimited
	MaxStartsPerMinute int `mapstructure:"max_starts_per_minute" toml:"max_starts_per_minute" json:"max_starts_per_minute" yaml:"max_starts_per_minute"`
}

// ServerConfig configures the HTTP/WebSocket state surface
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`
}

// Server port constants
const (
	DefaultServerPort = 8677
)

// File system constants
const (
	DefaultDirPermissions = 0755
)

// ReloadInterval returns the poll interval as a duration; zero means single shot
func (w WatchConfig) ReloadInterval() time.Duration {
	if w.ReloadIntervalMs <= 0 {
		return 0
	}
	return time.Duration(w.ReloadIntervalMs) * time.Millisecond
}

// Timeout returns the per-request timeout as a duration
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}
