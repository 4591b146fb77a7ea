package commands

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/display"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/poll"
	"github.com/teranos/jobpulse/pulse/watch"
	"github.com/teranos/jobpulse/sym"
)

// WatchCmd runs the controller in the foreground
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: sym.Pulse + " Poll the job queue and keep one job running",
	Long: sym.Pulse + ` Poll the remote job API and run admission control.

Whenever no job is running, the oldest queued job is started. The job table
is redrawn after every refresh. Editing am.toml while watching applies the
new interval and only_active setting without a restart.

Examples:
  jobpulse watch                      # Use watch.* from am.toml
  jobpulse watch --interval 2s        # Poll every 2 seconds
  jobpulse watch --no-admit           # Observe only, never start jobs`,
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchActive   bool
	watchNoAdmit  bool
	watchFields   string
)

func init() {
	WatchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (overrides watch.reload_interval_ms)")
	WatchCmd.Flags().BoolVar(&watchActive, "active", false, "Show only running jobs (disables admission in practice)")
	WatchCmd.Flags().BoolVar(&watchNoAdmit, "no-admit", false, "Never start jobs")
	WatchCmd.Flags().StringVar(&watchFields, "fields", "", "Comma-separated extra fields for the table")
}

// watchConfig merges config file settings with command line flags
func watchConfig(cmd *cobra.Command, cfg *am.Config) watch.Config {
	wc := watch.ConfigFromAM(cfg.Watch)
	wc.StartTimeout = cfg.API.Timeout()
	if cmd.Flags().Changed("interval") {
		wc.ReloadInterval = watchInterval
	}
	if cmd.Flags().Changed("active") {
		wc.OnlyActive = watchActive
	}
	if watchNoAdmit {
		wc.Admission = false
	}
	return wc
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	log := logger.ComponentLogger("watch")
	ctrl := watch.New(client, watchConfig(cmd, cfg), log)
	events, cancel := ctrl.Subscribe()
	defer cancel()

	stopWatcher := watchConfigFile(cmd, ctrl, log)
	defer stopWatcher()

	ctrl.Run()
	defer ctrl.Close()

	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return err
	}
	defer area.Stop()

	fields := splitFields(watchFields)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	v := verbosity(cmd)
	for {
		select {
		case <-sigChan:
			area.Update(fmt.Sprintf("\n%s Stopping...\n", sym.PulseClose))
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if logger.ShouldOutput(v, logger.OutputRefreshStatus) {
				log.Infow("Refresh status", logger.FieldStatus, ev.State.Status, logger.FieldVersion, ev.State.Version)
			}
			area.Update(renderWatch(ev.State, ctrl, fields))
		}
	}
}

// renderWatch builds the full watch screen for one state
func renderWatch(state poll.State, ctrl *watch.Controller, fields []string) string {
	var buf bytes.Buffer
	buf.WriteString(display.SummaryLine(state))
	buf.WriteString("\n\n")
	if err := display.RenderTable(&buf, state.Snapshot, fields); err != nil {
		fmt.Fprintf(&buf, "render failed: %v\n", err)
	}

	stats := ctrl.Stats()
	cfg := ctrl.Config()
	fmt.Fprintf(&buf, "\ninterval %s  admission %t  starts %d ok / %d failed",
		intervalText(cfg.ReloadInterval), cfg.Admission, stats.Admission.Succeeded, stats.Admission.Failed)
	if stats.Admission.LastJobID != "" {
		fmt.Fprintf(&buf, "  last %s", stats.Admission.LastJobID)
	}
	buf.WriteString("\n")
	return buf.String()
}

func intervalText(d time.Duration) string {
	if d <= 0 {
		return "once"
	}
	return d.String()
}

// watchConfigFile applies config edits to a running controller. With
// --config only that file is watched and reloaded; otherwise the project
// am.toml is watched and the full cascade is reloaded. Returns a stop func,
// a no-op when there is no file to watch.
func watchConfigFile(cmd *cobra.Command, ctrl *watch.Controller, log *zap.SugaredLogger) func() {
	var (
		watcher *am.ConfigWatcher
		err     error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		watcher, err = am.NewFileConfigWatcher(path, log.Named("config"))
	} else if path = am.ProjectConfigPath(); path != "" {
		watcher, err = am.NewConfigWatcher(path, log.Named("config"))
	} else {
		return func() {}
	}
	if err != nil {
		log.Warnw("Config hot-reload disabled", logger.FieldError, err)
		return func() {}
	}
	watcher.OnReload(func(cfg *am.Config) error {
		next := watchConfig(cmd, cfg)
		ctrl.Apply(next)
		log.Infow("Applied reloaded config",
			logger.FieldInterval, next.ReloadInterval,
			"only_active", next.OnlyActive)
		return nil
	})
	watcher.Start()

	return func() {
		if err := watcher.Stop(); err != nil {
			log.Debugw("Config watcher stop failed", logger.FieldError, err)
		}
	}
}
