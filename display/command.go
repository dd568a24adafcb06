package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/errors"
)

// JSONEnv forces JSON output when set to a non-empty value
const JSONEnv = "TEXCOMP_JSON"

// ShouldOutputJSON determines if a command should output JSON based on flags and the environment
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv(JSONEnv) != ""
	}

	// Check if --json flag was explicitly set
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	// Check global --json flag
	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return os.Getenv(JSONEnv) != ""
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Println(string(data))
	return nil
}
