// Package sym defines the symbols jobpulse uses in logs and terminal output.
// These symbols are stable across the CLI, the WebSocket surface and log fields.
package sym

// System markers
const (
	Pulse      = "꩜" // polling loop, refresh cycle
	PulseOpen  = "✿" // controller startup
	PulseClose = "❀" // controller shutdown
	Admit      = "⇥" // admission decision, start request
)

// Job status glyphs for rendering snapshots
const (
	StatusQueued   = "◌"
	StatusRunning  = "▶"
	StatusDone     = "✔"
	StatusFailed   = "✘"
	StatusStopped  = "■"
	StatusUnknown  = "·"
	RefreshLoading = "…"
)

// statusSymbols maps remote job status strings to glyphs
var statusSymbols = map[string]string{
	"queued":    StatusQueued,
	"running":   StatusRunning,
	"completed": StatusDone,
	"error":     StatusFailed,
	"failed":    StatusFailed,
	"stopped":   StatusStopped,
	"cancelled": StatusStopped,
}

// ForStatus returns the glyph for a job status, StatusUnknown for anything unrecognised
func ForStatus(status string) string {
	if s, ok := statusSymbols[status]; ok {
		return s
	}
	return StatusUnknown
}

// KnownStatuses returns the status strings that have a dedicated glyph
func KnownStatuses() []string {
	out := make([]string, 0, len(statusSymbols))
	for status := range statusSymbols {
		out = append(out, status)
	}
	return out
}
