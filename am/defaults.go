package am

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Remote API defaults
	v.SetDefault("api.base_url", "http://localhost:8675")
	v.SetDefault("api.timeout_seconds", 10)
	v.SetDefault("api.list_path", "/api/jobs")
	v.SetDefault("api.start_method", "GET")
	v.SetDefault("api.start_path", "/api/jobs/{id}/start")
	// Job APIs usually run on localhost
	v.SetDefault("api.block_private_ip", false)
	// Never trip: retry forever like the web UI
	v.SetDefault("api.breaker.max_failures", 0)
	v.SetDefault("api.breaker.open_timeout_seconds", 30)

	// Watch defaults mirror the UI hook: full list, single fetch
	v.SetDefault("watch.only_active", false)
	v.SetDefault("watch.reload_interval_ms", 0)
	v.SetDefault("watch.admission", true)
	v.SetDefault("watch.max_starts_per_minute", 0)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("api.token", "JOBPULSE_API_TOKEN")
	_ = v.BindEnv("api.base_url", "JOBPULSE_API_URL")
}
