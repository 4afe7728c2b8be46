package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vburojevic/wfsum/internal/config"
	"github.com/vburojevic/wfsum/internal/output"
)

// ConfigCmd groups the configuration subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which configuration file is used"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a configuration file with every key at its default"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// ConfigOutput is the NDJSON form of the effective configuration
type ConfigOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	*config.Config
	ConfigFile string `json:"config_file,omitempty"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(ConfigOutput{
			Type:          "config",
			SchemaVersion: output.SchemaVersion,
			Config:        cfg,
			ConfigFile:    config.ConfigFile(),
		})
	}

	w := globals.Stdout
	fmt.Fprintln(w, "Current Configuration:")
	if path := config.ConfigFile(); path != "" {
		fmt.Fprintf(w, "  (loaded from %s)\n", path)
	}
	fmt.Fprintf(w, "  format:  %s\n", cfg.Format)
	fmt.Fprintf(w, "  quiet:   %t\n", cfg.Quiet)
	fmt.Fprintf(w, "  verbose: %t\n", cfg.Verbose)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summarizer:")
	fmt.Fprintf(w, "  idle_time:          %ds\n", cfg.Summarizer.IdleTime)
	fmt.Fprintf(w, "  session_break_time: %dm\n", cfg.Summarizer.SessionBreakTime)
	fmt.Fprintf(w, "  workers:            %d\n", cfg.Summarizer.Workers)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Normalize:")
	fmt.Fprintf(w, "  strict: %t\n", cfg.Normalize.Strict)
	fmt.Fprintf(w, "  schema: %s\n", valueOrNone(cfg.Normalize.Schema))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintf(w, "  split_dir:    %s\n", valueOrNone(cfg.Output.SplitDir))
	fmt.Fprintf(w, "  metrics_file: %s\n", valueOrNone(cfg.Output.MetricsFile))
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// ConfigPathCmd prints the path of the configuration file in use
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(map[string]interface{}{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          path,
			"found":         path != "",
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found")
		fmt.Fprintln(globals.Stdout, "Run 'wfsum config generate > .wfsum.yaml' to create one")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a default configuration file
type ConfigGenerateCmd struct{}

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	_, err := fmt.Fprint(globals.Stdout, config.Template)
	return err
}
