package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vburojevic/wfsum/internal/config"
)

// Set by the build
var (
	Version = "dev"
	Commit  = "none"
)

// CLI is the root command model
type CLI struct {
	Format  string `short:"f" default:"${config_format}" enum:"ndjson,text,auto" help:"Output format: ndjson, text, or auto (text on a terminal)"`
	Quiet   bool   `short:"q" help:"Suppress run statistics and per-line reports (ndjson only)"`
	Verbose bool   `short:"v" help:"Write debug logs to stderr"`

	Summarize SummarizeCmd `cmd:"" help:"Reconstruct sessions from telemetry NDJSON and emit summaries"`
	Validate  ValidateCmd  `cmd:"" help:"Check telemetry lines against the event schema"`
	Schema    SchemaCmd    `cmd:"" help:"Print JSON schemas of inputs and outputs"`
	Config    ConfigCmd    `cmd:"" help:"Show or generate configuration"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

// Globals carries settings shared by every command
type Globals struct {
	Format  string // resolved: ndjson or text
	Quiet   bool
	Verbose bool
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
}

// NewGlobalsWithConfig merges parsed flags with loaded configuration
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	format := c.Format
	if format == "" {
		format = cfg.Format
	}
	return &Globals{
		Format:  resolveFormat(format, os.Stdout),
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
}

// resolveFormat turns "auto" into text for terminals and ndjson otherwise
func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "ndjson"
}
