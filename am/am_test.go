package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "http://localhost:8675", cfg.API.BaseURL)
	assert.Equal(t, "/api/jobs", cfg.API.ListPath)
	assert.Equal(t, "GET", cfg.API.StartMethod)
	assert.Equal(t, "/api/jobs/{id}/start", cfg.API.StartPath)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())
	assert.Equal(t, 0, cfg.API.Breaker.MaxFailures)

	assert.False(t, cfg.Watch.OnlyActive)
	assert.Equal(t, time.Duration(0), cfg.Watch.ReloadInterval())
	assert.True(t, cfg.Watch.Admission)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[api]
base_url = "http://jobs.internal:9000"
start_method = "POST"

[watch]
reload_interval_ms = 1500
only_active = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://jobs.internal:9000", cfg.API.BaseURL)
	assert.Equal(t, "POST", cfg.API.StartMethod)
	assert.Equal(t, 1500*time.Millisecond, cfg.Watch.ReloadInterval())
	assert.True(t, cfg.Watch.OnlyActive)
	// Untouched keys keep defaults
	assert.Equal(t, "/api/jobs", cfg.API.ListPath)
	assert.True(t, cfg.Watch.Admission)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	dir := t.TempDir()
	low := filepath.Join(dir, "low.toml")
	high := filepath.Join(dir, "high.toml")
	require.NoError(t, os.WriteFile(low, []byte("[watch]\nreload_interval_ms = 100\nonly_active = true\n"), 0644))
	require.NoError(t, os.WriteFile(high, []byte("[watch]\nreload_interval_ms = 200\n"), 0644))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{low, filepath.Join(dir, "absent.toml"), high})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Watch.ReloadIntervalMs)
	assert.True(t, cfg.Watch.OnlyActive)
}

func TestFindConfigUpwards(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(root, "am.toml"), []byte(""), 0644))

	assert.Equal(t, filepath.Join(root, "am.toml"), findConfigUpwards(nested))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "zero interval is single shot", mutate: func(c *Config) { c.Watch.ReloadIntervalMs = 0 }},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "api.base_url"},
		{name: "bad scheme", mutate: func(c *Config) { c.API.BaseURL = "ftp://jobs" }, wantErr: "http or https"},
		{name: "zero timeout", mutate: func(c *Config) { c.API.TimeoutSeconds = 0 }, wantErr: "timeout_seconds"},
		{name: "bad start method", mutate: func(c *Config) { c.API.StartMethod = "DELETE" }, wantErr: "start_method"},
		{name: "lowercase start method", mutate: func(c *Config) { c.API.StartMethod = "post" }},
		{name: "start path without id", mutate: func(c *Config) { c.API.StartPath = "/api/start" }, wantErr: "{id}"},
		{name: "negative breaker", mutate: func(c *Config) { c.API.Breaker.MaxFailures = -1 }, wantErr: "max_failures"},
		{name: "breaker without timeout", mutate: func(c *Config) {
			c.API.Breaker.MaxFailures = 3
			c.API.Breaker.OpenTimeoutSeconds = 0
		}, wantErr: "open_timeout_seconds"},
		{name: "negative interval", mutate: func(c *Config) { c.Watch.ReloadIntervalMs = -5 }, wantErr: "reload_interval_ms"},
		{name: "negative start rate", mutate: func(c *Config) { c.Watch.MaxStartsPerMinute = -1 }, wantErr: "max_starts_per_minute"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Watch.ReloadIntervalMs = 1000
	assert.Empty(t, cfg.Warnings())

	cfg.Watch.OnlyActive = true
	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "only_active")
}

func TestToTOML_MasksToken(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.API.Token = "super-secret"

	out, err := cfg.ToTOML()
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, `base_url = "http://localhost:8675"`)
	assert.Equal(t, "super-secret", cfg.API.Token, "original config must stay untouched")
}
