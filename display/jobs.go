package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/pulse/jobs"
	"github.com/teranos/jobpulse/pulse/poll"
	"github.com/teranos/jobpulse/sym"
)

// Output formats accepted by -o
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the supported output formats
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// Records converts a Snapshot into plain maps, keeping every business field
func Records(s jobs.Snapshot) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, s.Len())
	for _, j := range s.Jobs() {
		rec := map[string]interface{}{}
		if len(j.Raw) > 0 {
			_ = json.Unmarshal(j.Raw, &rec)
		}
		rec["id"] = j.ID
		rec["status"] = string(j.Status)
		out = append(out, rec)
	}
	return out
}

// StateView is the serialisable form of a controller state
type StateView struct {
	Status    string                   `json:"status" yaml:"status"`
	Version   uint64                   `json:"version" yaml:"version"`
	LastError string                   `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	FetchedAt time.Time                `json:"fetched_at" yaml:"fetched_at"`
	Counts    jobs.Counts              `json:"counts" yaml:"counts"`
	Jobs      []map[string]interface{} `json:"jobs" yaml:"jobs"`
}

// NewStateView builds a StateView from a store state
func NewStateView(state poll.State) StateView {
	return StateView{
		Status:    string(state.Status),
		Version:   state.Version,
		LastError: state.LastError,
		FetchedAt: state.Snapshot.FetchedAt(),
		Counts:    state.Snapshot.Counts(),
		Jobs:      Records(state.Snapshot),
	}
}

// RenderJobs writes a Snapshot in the given format. fields picks extra
// columns for the table format.
func RenderJobs(w io.Writer, s jobs.Snapshot, format string, fields []string) error {
	switch format {
	case FormatJSON:
		data, err := MarshalJSON(Records(s))
		if err != nil {
			return errors.Wrap(err, "failed to marshal jobs as JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		return RenderYAML(w, Records(s))
	case FormatTable, "":
		return RenderTable(w, s, fields)
	default:
		return errors.Newf("unsupported format: %s (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// RenderYAML writes v as YAML
func RenderYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to marshal YAML")
	}
	return enc.Close()
}

// RenderTable writes a Snapshot as a pterm table: status glyph, id, status,
// then any requested business fields
func RenderTable(w io.Writer, s jobs.Snapshot, fields []string) error {
	if s.Len() == 0 {
		_, err := fmt.Fprintln(w, "No jobs")
		return err
	}

	header := []string{"", "ID", "STATUS"}
	for _, f := range fields {
		header = append(header, strings.ToUpper(f))
	}

	data := pterm.TableData{header}
	for _, j := range s.Jobs() {
		row := []string{sym.ForStatus(string(j.Status)), j.ID, string(j.Status)}
		for _, f := range fields {
			row = append(row, fieldText(j.Field(f)))
		}
		data = append(data, row)
	}

	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// SummaryLine returns a one-line description of a state, e.g. for watch mode
func SummaryLine(state poll.State) string {
	c := state.Snapshot.Counts()
	line := fmt.Sprintf("%s %s  %d jobs  %d running  %d queued",
		sym.Pulse, state.Status, c.Total, c.Running, c.Queued)
	if state.Status == jobs.RefreshError && state.LastError != "" {
		line += "  (" + state.LastError + ")"
	}
	return line
}

func fieldText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
