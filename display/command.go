// Package display renders jobpulse output for terminals and scripts.
package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/jobpulse/errors"
)

// CallerEnv set to "script" makes commands default to JSON output
const CallerEnv = "JOBPULSE_CALLER"

// ShouldOutputJSON determines if a command should output JSON based on flags
// and the caller environment
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return isScriptCaller()
	}

	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	return isScriptCaller()
}

func isScriptCaller() bool {
	return os.Getenv(CallerEnv) == "script"
}

// OutputJSON marshals and prints JSON using MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Println(string(data))
	return nil
}
