package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/sym"
)

// StartCmd asks the API to start a single job, bypassing admission
var StartCmd = &cobra.Command{
	Use:   "start <job-id>",
	Short: sym.Admit + " Ask the API to start a job",
	Long: sym.Admit + ` Send a start request for one job.

This bypasses the one-running-job rule: the request is sent even if another
job is running. Use 'jobpulse watch' to let the controller pick jobs.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	id := args[0]

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

	if err := client.StartJob(ctx, id); err != nil {
		switch {
		case errors.IsConflictError(err):
			err = errors.WithHint(err, "the job is not queued any more; check it with 'jobpulse ls'")
		case errors.IsNotFoundError(err):
			err = errors.WithHintf(err, "no job with id %s", id)
		}
		printError(err)
		return errors.Wrapf(err, "start %s failed", id)
	}

	pterm.Success.Printf("%s Start requested for job %s\n", sym.Admit, id)
	return nil
}
