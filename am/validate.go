package am

import (
	"net/url"
	"strings"

	"github.com/teranos/jobpulse/errors"
)

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.WithHint(errors.New("api.base_url cannot be empty"),
			"set api.base_url in am.toml or JOBPULSE_API_URL")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "api.base_url %q is not a valid URL", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("api.base_url must use http or https, got %q", u.Scheme)
	}

	if c.API.TimeoutSeconds <= 0 {
		return errors.Newf("api.timeout_seconds must be > 0, got %d", c.API.TimeoutSeconds)
	}

	switch strings.ToUpper(c.API.StartMethod) {
	case "GET", "POST":
	default:
		return errors.Newf("api.start_method must be GET or POST, got %q", c.API.StartMethod)
	}
	if !strings.Contains(c.API.StartPath, "{id}") {
		return errors.WithHint(
			errors.Newf("api.start_path %q has no {id} placeholder", c.API.StartPath),
			"example: /api/jobs/{id}/start")
	}

	// Breaker: 0 = never trip, negative = invalid
	if c.API.Breaker.MaxFailures < 0 {
		return errors.Newf("api.breaker.max_failures must be >= 0, got %d", c.API.Breaker.MaxFailures)
	}
	if c.API.Breaker.MaxFailures > 0 && c.API.Breaker.OpenTimeoutSeconds <= 0 {
		return errors.Newf("api.breaker.open_timeout_seconds must be > 0 when the breaker is enabled, got %d",
			c.API.Breaker.OpenTimeoutSeconds)
	}

	// Poll interval: 0 = single shot, negative = invalid
	if c.Watch.ReloadIntervalMs < 0 {
		return errors.Newf("watch.reload_interval_ms must be >= 0, got %d", c.Watch.ReloadIntervalMs)
	}
	if c.Watch.MaxStartsPerMinute < 0 {
		return errors.Newf("watch.max_starts_per_minute must be >= 0, got %d", c.Watch.MaxStartsPerMinute)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	return nil
}

// Warnings returns non-fatal configuration smells worth logging at startup
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Watch.OnlyActive && c.Watch.Admission {
		warnings = append(warnings,
			"watch.only_active hides queued jobs from the snapshot, so admission will never start one")
	}
	if c.Watch.Admission && c.Watch.ReloadIntervalMs == 0 {
		warnings = append(warnings,
			"watch.reload_interval_ms is 0: admission only re-evaluates after manual refreshes and its own starts")
	}
	return warnings
}
