package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/pulse/jobs"
	"github.com/teranos/jobpulse/pulse/poll"
)

// StateMessage is the JSON shape of /api/state and of every WebSocket push
type StateMessage struct {
	Type      string             `json:"type"`
	Status    jobs.RefreshStatus `json:"status"`
	Version   uint64             `json:"version"`
	LastError string             `json:"last_error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
	FetchedAt time.Time          `json:"fetched_at"`
	Counts    jobs.Counts        `json:"counts"`
	Jobs      []jobs.Job         `json:"jobs"`
}

func newStateMessage(state poll.State) StateMessage {
	list := state.Snapshot.Jobs()
	if list == nil {
		list = []jobs.Job{}
	}
	return StateMessage{
		Type:      "state",
		Status:    state.Status,
		Version:   state.Version,
		LastError: state.LastError,
		UpdatedAt: state.UpdatedAt,
		FetchedAt: state.Snapshot.FetchedAt(),
		Counts:    state.Snapshot.Counts(),
		Jobs:      list,
	}
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, map[string]string{"error": message})
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
