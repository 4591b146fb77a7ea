package logger

// OutputCategory defines a category of CLI output that can be enabled/disabled.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT is printed by the watch and ls commands.
type OutputCategory int

const (
	// Level 0 - always shown
	OutputResults OutputCategory = iota // Job tables, command output
	OutputErrors                        // Errors with hints

	// Level 1 (-v)
	OutputRefreshStatus // idle/loading/success/error transitions
	OutputAdmission     // Start requests issued by the controller

	// Level 2 (-vv)
	OutputHTTPCalls // Remote API requests
	OutputConfig    // Effective config on startup

	// Level 3 (-vvv)
	OutputSnapshotDump // Full raw job records
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:       VerbosityUser,
	OutputErrors:        VerbosityUser,
	OutputRefreshStatus: VerbosityInfo,
	OutputAdmission:     VerbosityInfo,
	OutputHTTPCalls:     VerbosityDebug,
	OutputConfig:        VerbosityDebug,
	OutputSnapshotDump:  VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, require the highest verbosity
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
