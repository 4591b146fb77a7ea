// Package server exposes a controller's job list to UIs: JSON endpoints for
// the current state and a WebSocket that pushes every state change.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/poll"
	"github.com/teranos/jobpulse/pulse/watch"
)

// ShutdownTimeout bounds how long Stop waits for goroutines
const ShutdownTimeout = 5 * time.Second

// Controller is the part of watch.Controller the server reads from
type Controller interface {
	State() poll.State
	Subscribe() (<-chan poll.Event, func())
	RefreshNow()
	Stats() watch.Stats
}

// ServerState tracks the lifecycle for health reporting
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Server pushes controller state to HTTP and WebSocket clients
type Server struct {
	ctrl           Controller
	allowedOrigins []string
	logger         *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce      sync.Once
	stopOnce       sync.Once
	httpServer     *http.Server
	state          atomic.Int32
	broadcastDrops atomic.Int64
}

// New creates a server for ctrl. Call Start to run the hub.
func New(ctrl Controller, cfg am.ServerConfig, log *zap.SugaredLogger) *Server {
	log = logger.OrNop(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctrl:           ctrl,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         log,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start runs the hub that fans state changes out to WebSocket clients.
// Safe to call more than once.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		events, cancel := s.ctrl.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer cancel()
			s.run(events)
		}()
	})
}

// run is the hub loop. It owns all sends to client channels.
func (s *Server) run(events <-chan poll.Event) {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case ev, ok := <-events:
			if !ok {
				// Controller closed; keep serving the last state to connected clients
				events = nil
				continue
			}
			s.broadcast(newStateMessage(ev.State))
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	s.clients[client] = true
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected", "client_id", client.id, "clients", count)

	// New clients get the current state right away
	select {
	case client.send <- newStateMessage(s.ctrl.State()):
	default:
	}
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client disconnected", "client_id", client.id, "clients", count)
}

// broadcast never blocks: a client whose buffer is full misses this message
func (s *Server) broadcast(msg StateMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			s.broadcastDrops.Add(1)
			s.logger.Debugw("Client send buffer full, dropping state update", "client_id", client.id)
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ListenAndServe starts the hub and serves HTTP on port, falling back to a
// nearby port when it is taken. Returns http.ErrServerClosed after Stop.
func (s *Server) ListenAndServe(port int) error {
	s.Start()

	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	addr := fmt.Sprintf(":%d", actualPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow(fmt.Sprintf("HTTP server listening on port %d", actualPort),
		logger.FieldAddress, fmt.Sprintf("http://localhost:%d", actualPort))
	return srv.Serve(ln)
}

// Stop closes client connections, shuts down the HTTP listener and waits
// for goroutines. Idempotent.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Infow("Initiating server shutdown")
		s.state.Store(int32(ServerStateDraining))

		s.mu.Lock()
		srv := s.httpServer
		clientsToClose := make([]*Client, 0, len(s.clients))
		for client := range s.clients {
			clientsToClose = append(clientsToClose, client)
		}
		s.mu.Unlock()

		// Closing the connection unblocks readPump
		for _, client := range clientsToClose {
			client.conn.Close()
		}

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
				err = errors.Wrap(shutdownErr, "failed to shut down HTTP server")
			}
		}

		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.logger.Debugw("All server goroutines stopped")
		case <-time.After(ShutdownTimeout):
			s.logger.Warnw("Goroutine shutdown timed out", "timeout", ShutdownTimeout)
		}

		s.state.Store(int32(ServerStateStopped))
		s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	})
	return err
}

// stateString returns the human-readable server state
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
