// Package jobs is the client-side model of the remote job queue: the job
// records one poll returns, their status, and the immutable Snapshot the
// controller makes admission decisions from.
package jobs

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/jobpulse/errors"
)

// Status is the remote job state. The controller only acts on queued and
// running; every other value is terminal/other and passed through as-is.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
	StatusCancelled Status = "cancelled"
)

// IsQueued reports whether the job is waiting to be started
func (s Status) IsQueued() bool { return s == StatusQueued }

// IsRunning reports whether the job is active
func (s Status) IsRunning() bool { return s == StatusRunning }

// IsTerminal reports whether the status is anything other than queued or running
func (s Status) IsTerminal() bool { return !s.IsQueued() && !s.IsRunning() }

// Job is one remote job record. Only ID and Status are interpreted;
// the full record is kept in Raw so business fields survive a round trip.
type Job struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

// New builds a Job with a minimal raw record, for tests and fakes
func New(id string, status Status) Job {
	raw, _ := json.Marshal(map[string]string{"id": id, "status": string(status)})
	return Job{ID: id, Status: status, Raw: raw}
}

// UnmarshalJSON reads id and status and keeps the full record.
// The id may be a JSON string or number; numbers keep their literal text.
func (j *Job) UnmarshalJSON(data []byte) error {
	var head struct {
		ID     json.RawMessage `json:"id"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return errors.Wrap(err, "invalid job record")
	}

	id, err := decodeID(head.ID)
	if err != nil {
		return err
	}

	j.ID = id
	j.Status = Status(head.Status)
	j.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the raw record untouched when present
func (j Job) MarshalJSON() ([]byte, error) {
	if len(j.Raw) > 0 {
		return j.Raw, nil
	}
	return json.Marshal(map[string]string{"id": j.ID, "status": string(j.Status)})
}

// Field returns a top-level business field from the raw record, or nil
func (j Job) Field(name string) interface{} {
	if len(j.Raw) == 0 {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(j.Raw, &fields); err != nil {
		return nil
	}
	return fields[name]
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("job record has no id")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Wrap(err, "invalid job id")
		}
		if strings.TrimSpace(s) == "" {
			return "", errors.New("job record has an empty id")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Wrapf(err, "job id must be a string or number, got %s", string(raw))
	}
	return n.String(), nil
}
