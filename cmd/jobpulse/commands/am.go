package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/display"
	"github.com/teranos/jobpulse/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show and validate jobpulse configuration",
	Long: `am - Show and validate jobpulse configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/jobpulse/am.toml)
3. User config (~/.jobpulse/am.toml)
4. Project config (./am.toml, searched up from the working directory)
5. Environment variables (JOBPULSE_* prefix, e.g. JOBPULSE_API_TOKEN)
6. Command line flags

Examples:
  jobpulse am show                  # Effective configuration as TOML
  jobpulse am show --format yaml    # ... as YAML
  jobpulse am validate              # Check values and unknown keys
  jobpulse am where                 # Which files were found`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. The API token is masked.",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	masked := cfg.Masked()

	switch configFormat {
	case "json":
		return display.OutputJSON(masked)
	case "yaml":
		fmt.Println("# jobpulse configuration")
		return display.RenderYAML(os.Stdout, masked)
	case "toml":
		out, err := cfg.ToTOML()
		if err != nil {
			return err
		}
		fmt.Printf("# jobpulse configuration\n%s", out)
		return nil
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		printError(err)
		return errors.Wrap(err, "configuration validation failed")
	}

	files := am.LoadedFiles()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		files = []string{path}
	}

	var failed bool
	for _, path := range files {
		if err := am.CheckUnknownKeys(path); err != nil {
			printError(err)
			failed = true
		}
	}
	if failed {
		return errors.New("configuration has unknown keys")
	}

	for _, w := range cfg.Warnings() {
		pterm.Warning.Println(w)
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")
	fmt.Println("  2. [SYSTEM]   /etc/jobpulse/am.toml")
	fmt.Println("  3. [USER]     ~/.jobpulse/am.toml")
	fmt.Println("  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Println("  5. [ENV]      JOBPULSE_* environment variables")
	fmt.Println()

	files := am.LoadedFiles()
	if len(files) == 0 {
		fmt.Println("No config files found, using defaults")
		return nil
	}
	fmt.Println("Loaded files:")
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}
