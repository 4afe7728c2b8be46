package cli

import (
	"errors"
	"fmt"

	"github.com/vburojevic/wfsum/internal/output"
)

// Error codes carried by error records
const (
	codeInvalidFlags       = "INVALID_FLAGS"
	codeInputOpenFailed    = "INPUT_OPEN_FAILED"
	codeNormalizeFailed    = "NORMALIZE_FAILED"
	codeUnsortedInput      = "UNSORTED_INPUT"
	codeReconstructFailed  = "RECONSTRUCT_FAILED"
	codeOutputFailed       = "OUTPUT_FAILED"
	codeMetricsWriteFailed = "METRICS_WRITE_FAILED"
	codeConfigInvalid      = "CONFIG_INVALID"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so pipelines always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		output.NewNDJSONWriter(globals.Stdout).WriteError(code, message, hint...)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}
