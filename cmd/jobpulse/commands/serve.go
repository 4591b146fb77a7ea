package commands

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/watch"
	"github.com/teranos/jobpulse/server"
	"github.com/teranos/jobpulse/sym"
)

// ServeCmd runs the controller and exposes its state over HTTP and WebSocket
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Pulse + " Run the controller and serve its state",
	Long: sym.Pulse + ` Run the controller in the background and serve its state.

Endpoints:
  GET  /api/state      Current snapshot and refresh status
  GET  /api/jobs/{id}  One job from the current snapshot
  GET  /api/stats      Poller, admission and breaker counters
  POST /api/refresh    Trigger an immediate poll
  GET  /ws             State pushed on every change
  GET  /health         Liveness`,
	RunE: runServe,
}

var (
	servePort    int
	serveNoAdmit bool
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	ServeCmd.Flags().BoolVar(&serveNoAdmit, "no-admit", false, "Never start jobs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	wc := watch.ConfigFromAM(cfg.Watch)
	wc.StartTimeout = cfg.API.Timeout()
	if serveNoAdmit {
		wc.Admission = false
	}

	ctrl := watch.New(client, wc, logger.ComponentLogger("watch"))
	ctrl.Run()
	defer ctrl.Close()

	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	srv := server.New(ctrl, cfg.Server, logger.ComponentLogger("server"))
	pterm.Info.Printf("%s Watching %s\n", sym.PulseOpen, client.BaseURL())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
