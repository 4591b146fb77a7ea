package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/remote"
)

// verbosity returns the -v count
func verbosity(cmd *cobra.Command) int {
	v, _ := cmd.Flags().GetCount("verbose")
	return v
}

// InitLogging sets up the global logger. -v and --log-json win over
// log.level and log.json from config.
func InitLogging(cmd *cobra.Command) error {
	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	v := verbosity(cmd)

	cfg, cfgErr := am.Load()
	if cfgErr == nil && !cmd.Flags().Changed("log-json") {
		jsonLogs = cfg.Log.JSON
	}

	var err error
	if v == 0 && cfgErr == nil {
		err = logger.InitializeWithLevel(jsonLogs, logger.ParseLevel(cfg.Log.Level))
	} else {
		err = logger.InitializeWithVerbosity(jsonLogs, v)
	}
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

// loadConfig loads config from --config or the am.toml cascade, applies
// flag overrides, validates, and prints warnings
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	var cfg *am.Config
	var err error

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if logger.ShouldOutput(verbosity(cmd), logger.OutputErrors) {
		for _, w := range cfg.Warnings() {
			pterm.Warning.Println(w)
		}
	}
	return cfg, nil
}

// newClient builds the remote API client from config
func newClient(cfg *am.Config) (*remote.Client, error) {
	client, err := remote.NewFromConfig(cfg.API, logger.ComponentLogger("remote"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create job API client")
	}
	return client, nil
}

// printError prints err with any hints attached
func printError(err error) {
	pterm.Error.Println(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		pterm.Info.Println(hint)
	}
}
