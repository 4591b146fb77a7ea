package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/cmd/jobpulse/commands"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/sym"
)

var rootCmd = &cobra.Command{
	Use:   "jobpulse",
	Short: sym.Pulse + " jobpulse - keep one remote job running at a time",
	Long: sym.Pulse + ` jobpulse - client-side controller for a remote job queue.

jobpulse polls a job API, keeps a local view of the queue, and when no job
is running asks the API to start the oldest queued one.

Available commands:
  watch  - Poll the queue and run admission in the foreground
  ls     - List jobs once
  start  - Ask the API to start one job
  serve  - Run the controller and serve its state over HTTP/WebSocket
  am     - Show and validate configuration ("I am")

Examples:
  jobpulse watch --interval 5s     # Poll every 5 seconds, start jobs as slots free up
  jobpulse ls -o yaml              # Dump the current queue as YAML
  jobpulse start 42                # Start job 42 by hand
  jobpulse serve --port 8677       # Expose /api/state and /ws for a UI`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' prints config to stdout; keep logs out of the way
		if cmd.Name() == "show" {
			return nil
		}
		return commands.InitLogging(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: am.toml cascade)")
	rootCmd.PersistentFlags().String("base-url", "", "Job API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
