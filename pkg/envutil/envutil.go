// Package envutil provides environment-variable-backed defaults for CLI
// flags.
package envutil

import (
	"log/slog"
	"os"
	"strconv"
)

// Bool returns the boolean value of the environment variable name, or
// defValue if it is unset or unparsable.
func Bool(name string, defValue bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return defValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("failed to parse a boolean environment variable", "name", name, "value", v, "error", err)
		return defValue
	}
	return b
}
