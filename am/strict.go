package am

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/jobpulse/errors"
)

// CheckUnknownKeys decodes a config file strictly and reports keys that no
// setting consumes, usually typos like reload_interval instead of
// reload_interval_ms. Viper silently ignores these.
func CheckUnknownKeys(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer f.Close()

	var cfg Config
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for _, e := range strict.Errors {
				keys = append(keys, strings.Join(e.Key(), "."))
			}
			return errors.WithHint(
				errors.Newf("%s: unknown keys: %s", path, strings.Join(keys, ", ")),
				"run 'jobpulse am show' to see the supported settings")
		}
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// LoadedFiles returns the config files that exist, in merge order
func LoadedFiles() []string {
	var found []string
	for _, path := range configPaths() {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	return found
}
