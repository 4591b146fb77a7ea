package display

import (
	"encoding/json"
)

// MarshalJSON marshals compact JSON for script callers and indented JSON for
// humans
func MarshalJSON(v interface{}) ([]byte, error) {
	if isScriptCaller() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
