package am

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"github.com/teranos/jobpulse/errors"
)

// redacted replaces secrets in ToTOML output
const redacted = "********"

// ToTOML renders the effective configuration as TOML, with the API token masked
func (c *Config) ToTOML() (string, error) {
	masked := c.Masked()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return "", errors.Wrap(err, "failed to encode config as TOML")
	}
	return buf.String(), nil
}

// Masked returns a copy of the config with secrets replaced
func (c *Config) Masked() Config {
	masked := *c
	if masked.API.Token != "" {
		masked.API.Token = redacted
	}
	return masked
}
