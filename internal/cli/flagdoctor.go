package cli

// validateFlags centralizes flag combinations that cannot work together.
func validateFlags(globals *Globals, splitDir string) error {
	// per-identity files are NDJSON; a text table cannot be split
	if splitDir != "" && globals != nil && globals.Format != "ndjson" {
		return outputErrorCommon(globals, codeInvalidFlags, "--split-dir requires ndjson output", "add --format ndjson or remove --split-dir")
	}
	// quiet + text leaves nothing useful on screen; steer to ndjson
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, codeInvalidFlags, "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	return nil
}
