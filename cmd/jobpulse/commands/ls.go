package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/display"
	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/pulse/jobs"
)

// LsCmd lists jobs once
var LsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs from the remote API",
	Long: `Fetch the job list once and print it.

Examples:
  jobpulse ls                       # Table with id and status
  jobpulse ls --fields name,gpu     # Extra columns from the job records
  jobpulse ls --active -o json      # Only running jobs, as JSON`,
	RunE: runLs,
}

var (
	lsOutput string
	lsActive bool
	lsFields string
)

func init() {
	LsCmd.Flags().StringVarP(&lsOutput, "output", "o", display.FormatTable, "Output format: "+strings.Join(display.Formats, ", "))
	LsCmd.Flags().BoolVar(&lsActive, "active", false, "Show only running jobs")
	LsCmd.Flags().StringVar(&lsFields, "fields", "", "Comma-separated extra fields for table output")
	LsCmd.Flags().Bool("json", false, "Shorthand for -o json")
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout())
	defer cancel()

	list, err := client.ListJobs(ctx)
	if err != nil {
		printError(err)
		return errors.Wrap(err, "ls failed")
	}

	snapshot := jobs.NewSnapshot(list, time.Now())
	if lsActive {
		snapshot = snapshot.OnlyRunning()
	}

	format := lsOutput
	if display.ShouldOutputJSON(cmd) {
		format = display.FormatJSON
	}
	return display.RenderJobs(os.Stdout, snapshot, format, splitFields(lsFields))
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
