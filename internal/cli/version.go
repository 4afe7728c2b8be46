package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vburojevic/wfsum/internal/output"
)

const goInstallCmd = "go install github.com/vburojevic/wfsum/cmd/wfsum@latest"

// VersionCmd shows version information
type VersionCmd struct{}

// VersionOutput is the NDJSON form of the version command
type VersionOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	GoInstall     string `json:"go_install"`
}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(VersionOutput{
			Type:          "version",
			SchemaVersion: output.SchemaVersion,
			Version:       Version,
			Commit:        Commit,
			GoInstall:     goInstallCmd,
		})
	}
	fmt.Fprintf(globals.Stdout, "wfsum version %s (%s)\n", Version, Commit)
	fmt.Fprintf(globals.Stdout, "Upgrade with: %s\n", goInstallCmd)
	return nil
}
