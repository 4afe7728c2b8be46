package cli

import (
	"fmt"

	"github.com/vburojevic/wfsum/internal/normalize"
	"github.com/vburojevic/wfsum/internal/output"
)

// ValidateCmd checks raw telemetry against the event schema without
// reconstructing anything
type ValidateCmd struct {
	Files  []string `arg:"" optional:"" help:"Telemetry NDJSON files (default: stdin)"`
	Schema string   `default:"${config_schema}" help:"Replacement event JSON schema file"`
}

// Run executes the validate command
func (c *ValidateCmd) Run(globals *Globals) error {
	schema := c.Schema
	if schema == "" && globals.Config != nil {
		schema = globals.Config.Normalize.Schema
	}

	ndjson := output.NewNDJSONWriter(globals.Stdout)
	report := func(source string, line int, err error) {
		if globals.Quiet {
			return
		}
		if globals.Format == "ndjson" {
			ndjson.WriteInvalidLine(source, line, err)
			return
		}
		fmt.Fprintf(globals.Stdout, "%s:%d: %v\n", source, line, err)
	}

	norm, err := normalize.New(normalize.Options{
		SchemaPath:  schema,
		Logger:      newLogger(globals),
		OnMalformed: report,
	})
	if err != nil {
		return outputErrorCommon(globals, codeConfigInvalid, err.Error(), "check --schema")
	}

	if err := readInputs(globals, norm, c.Files); err != nil {
		return err
	}

	stats := norm.Stats()
	valid := stats.Lines - stats.Malformed
	if globals.Format == "ndjson" {
		if err := ndjson.WriteValidation(stats.Lines, valid, stats.Malformed); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(globals.Stdout, "%d lines, %d valid, %d invalid\n", stats.Lines, valid, stats.Malformed)
	}

	if stats.Malformed > 0 {
		return fmt.Errorf("%d invalid lines", stats.Malformed)
	}
	return nil
}
