package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/jobpulse/version"
)

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/api/state", s.corsMiddleware(s.HandleState))
	mux.HandleFunc("/api/jobs/{id}", s.corsMiddleware(s.HandleJob))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.HandleStats))
	mux.HandleFunc("/api/refresh", s.corsMiddleware(s.HandleRefresh))
	return mux
}

// HandleState serves the current Snapshot and refresh status
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if err := writeJSON(w, http.StatusOK, newStateMessage(s.ctrl.State())); err != nil {
		s.logger.Warnw("Failed to write state", "error", err)
	}
}

// HandleJob serves one job from the current Snapshot. It does not call the
// remote API.
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	job, ok := s.ctrl.State().Snapshot.Find(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	_ = writeJSON(w, http.StatusOK, job)
}

// HandleStats serves poller and admission statistics
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	_ = writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

// HandleRefresh triggers an immediate poll. The result arrives over /ws or
// a later /api/state.
func (s *Server) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.ctrl.RefreshNow()
	_ = writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh triggered"})
}

// HandleHealth reports server and build information
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()
	health := map[string]interface{}{
		"status":     "ok",
		"state":      stateString(ServerState(s.state.Load())),
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
		"clients":    s.ClientCount(),
	}
	_ = writeJSON(w, http.StatusOK, health)
}

// HandleWebSocket upgrades the connection and registers the client with the hub
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan StateMessage, sendBufferSize),
		id:     uuid.New().String(),
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}
