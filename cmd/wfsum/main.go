package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/wfsum/internal/cli"
	"github.com/vburojevic/wfsum/internal/config"
)

const quickStart = `wfsum - workflow summaries from learning-app telemetry

Quick start:
  wfsum summarize events.ndjson         Reconstruct sessions and emit summaries
  cat events.ndjson | wfsum summarize   Read from stdin
  wfsum validate events.ndjson          Check lines against the event schema

For help:
  wfsum --help                          All commands and flags
  wfsum schema                          JSON schemas of inputs and outputs
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Config values become flag defaults; explicit flags still win
	vars := kong.Vars{
		"config_format":        cfg.Format,
		"config_idle_time":     strconv.Itoa(cfg.Summarizer.IdleTime),
		"config_session_break": strconv.Itoa(cfg.Summarizer.SessionBreakTime),
		"config_workers":       strconv.Itoa(cfg.Summarizer.Workers),
		"config_strict":        strconv.FormatBool(cfg.Normalize.Strict),
		"config_schema":        cfg.Normalize.Schema,
		"config_split_dir":     cfg.Output.SplitDir,
		"config_metrics_file":  cfg.Output.MetricsFile,
	}

	ctx := kong.Parse(&c,
		kong.Name("wfsum"),
		kong.Description("wfsum: reconstruct learning sessions from telemetry and emit workflow summaries"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
