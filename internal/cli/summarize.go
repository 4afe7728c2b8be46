package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/vburojevic/wfsum/internal/config"
	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/filter"
	"github.com/vburojevic/wfsum/internal/metrics"
	"github.com/vburojevic/wfsum/internal/normalize"
	"github.com/vburojevic/wfsum/internal/output"
	"github.com/vburojevic/wfsum/internal/session"
	"github.com/vburojevic/wfsum/internal/summarizer"
	"go.uber.org/zap"
)

// SummarizeCmd reconstructs sessions and emits workflow summaries
type SummarizeCmd struct {
	Files        []string `arg:"" optional:"" help:"Telemetry NDJSON files (default: stdin, '-' also reads stdin)"`
	IdleTime     int      `default:"${config_idle_time}" help:"Seconds between events beyond which time is not counted as spent"`
	SessionBreak int      `default:"${config_session_break}" help:"Minutes of silence that force a new session"`
	Workers      int      `short:"w" default:"${config_workers}" help:"Identities reconstructed in parallel"`
	Type         string   `short:"t" help:"Regex of event types to keep"`
	ExcludeType  []string `short:"x" help:"Regex of event types to drop (can be repeated)"`
	Where        []string `help:"Field filter such as eid=START, type~content or timestamp>=2025-01-01T00:00:00Z (can be repeated)"`
	Strict       bool     `default:"${config_strict}" negatable:"" help:"Fail on the first malformed line instead of discarding it"`
	Schema       string   `default:"${config_schema}" help:"Replacement event JSON schema file"`
	SplitDir     string   `default:"${config_split_dir}" help:"Write one NDJSON file per identity into this directory"`
	MetricsFile  string   `default:"${config_metrics_file}" help:"Write prometheus metrics to this file after the run"`
	Explain      bool     `help:"Emit session_debug records for session breaks, restarts and dropped events (ndjson only)"`
}

// summarizeSettings are the flag values after config fallbacks
type summarizeSettings struct {
	idle         time.Duration
	sessionBreak time.Duration
	workers      int
	strict       bool
	schema       string
	splitDir     string
	metricsFile  string
}

// Run executes the summarize command
func (c *SummarizeCmd) Run(globals *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return c.run(ctx, globals)
}

func (c *SummarizeCmd) settings(cfg *config.Config) (summarizeSettings, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := summarizeSettings{
		idle:         cfg.IdleDuration(),
		sessionBreak: cfg.SessionBreakDuration(),
		workers:      cfg.Summarizer.Workers,
		strict:       c.Strict || cfg.Normalize.Strict,
		schema:       lo.CoalesceOrEmpty(c.Schema, cfg.Normalize.Schema),
		splitDir:     lo.CoalesceOrEmpty(c.SplitDir, cfg.Output.SplitDir),
		metricsFile:  lo.CoalesceOrEmpty(c.MetricsFile, cfg.Output.MetricsFile),
	}
	switch {
	case c.IdleTime < 0:
		return s, fmt.Errorf("--idle-time must be positive, got %d", c.IdleTime)
	case c.SessionBreak < 0:
		return s, fmt.Errorf("--session-break must be positive, got %d", c.SessionBreak)
	case c.Workers < 0:
		return s, fmt.Errorf("--workers must be at least 1, got %d", c.Workers)
	}
	if c.IdleTime > 0 {
		s.idle = time.Duration(c.IdleTime) * time.Second
	}
	if c.SessionBreak > 0 {
		s.sessionBreak = time.Duration(c.SessionBreak) * time.Minute
	}
	if c.Workers > 0 {
		s.workers = c.Workers
	}
	return s, nil
}

func (c *SummarizeCmd) run(ctx context.Context, globals *Globals) error {
	settings, err := c.settings(globals.Config)
	if err != nil {
		return outputErrorCommon(globals, codeInvalidFlags, err.Error())
	}
	if err := validateFlags(globals, settings.splitDir); err != nil {
		return err
	}
	if c.Explain && globals.Format != "ndjson" {
		return outputErrorCommon(globals, codeInvalidFlags, "--explain requires ndjson output", "add --format ndjson or remove --explain")
	}

	pipeline, err := buildPipeline(c.Type, c.ExcludeType, c.Where)
	if err != nil {
		return outputErrorCommon(globals, codeInvalidFlags, err.Error())
	}

	logger := newLogger(globals)
	defer logger.Sync()
	m := metrics.New()

	norm, err := normalize.New(normalize.Options{
		Strict:     settings.strict,
		SchemaPath: settings.schema,
		Pipeline:   pipeline,
		Logger:     logger,
	})
	if err != nil {
		return outputErrorCommon(globals, codeConfigInvalid, err.Error(), "check --schema")
	}
	if err := readInputs(globals, norm, c.Files); err != nil {
		return err
	}
	stats := norm.Stats()
	m.EventsMalformed.Add(float64(stats.Malformed))
	logger.Debug("input normalized",
		zap.Int("lines", stats.Lines),
		zap.Int("events", stats.Events),
		zap.Int("malformed", stats.Malformed),
		zap.Int("filtered", stats.Filtered),
	)

	ndjson := output.NewNDJSONWriter(globals.Stdout)
	cfg := summarizer.Config{
		IdleTime:     settings.idle,
		SessionBreak: settings.sessionBreak,
		Workers:      settings.workers,
		Logger:       logger,
		Metrics:      m,
	}
	if c.Explain {
		cfg.Debug = func(d domain.SessionDebug) {
			ndjson.WriteDebug(&d)
		}
	}

	results, err := summarizer.New(cfg).Run(ctx, norm.Groups())
	if err != nil {
		if errors.Is(err, session.ErrUnsorted) {
			return outputErrorCommon(globals, codeUnsortedInput, err.Error(), "events of one identity must be in timestamp order")
		}
		return outputErrorCommon(globals, codeReconstructFailed, err.Error())
	}

	sink, closeSink, err := c.openSink(globals, settings.splitDir)
	if err != nil {
		return outputErrorCommon(globals, codeOutputFailed, err.Error())
	}
	emitter := output.NewEmitter(sink, output.WithMetrics(m))

	run := &domain.RunStats{
		Type:          "run_stats",
		SchemaVersion: output.SchemaVersion,
		Identities:    len(results),
		Events:        stats.Events,
		Malformed:     stats.Malformed,
	}
	for _, res := range results {
		n, err := emitter.Emit(res.Identity, res.Summaries)
		if err != nil {
			closeSink()
			return outputErrorCommon(globals, codeOutputFailed, err.Error())
		}
		run.Summaries += n
		run.Dropped += res.Dropped
		run.Collapsed += res.Collapsed
	}
	if err := closeSink(); err != nil {
		return outputErrorCommon(globals, codeOutputFailed, err.Error())
	}

	if settings.metricsFile != "" {
		if err := m.WriteFile(settings.metricsFile); err != nil {
			return outputErrorCommon(globals, codeMetricsWriteFailed, err.Error())
		}
	}

	if globals.Quiet {
		return nil
	}
	if globals.Format == "ndjson" {
		return ndjson.WriteRunStats(run)
	}
	return output.NewTextWriter(globals.Stdout).WriteRunStats(run)
}

// openSink picks where summaries go: per-identity files, NDJSON or a text table
func (c *SummarizeCmd) openSink(globals *Globals, splitDir string) (output.SummarySink, func() error, error) {
	noop := func() error { return nil }
	if splitDir != "" {
		p, err := output.NewPartitionWriter(splitDir)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout), noop, nil
	}
	return output.NewTextWriter(globals.Stdout), noop, nil
}

// readInputs feeds every input into the normalizer; no files means stdin
func readInputs(globals *Globals, norm *normalize.Normalizer, files []string) error {
	if len(files) == 0 {
		files = []string{"-"}
	}
	for _, path := range files {
		if err := readInput(globals, norm, path); err != nil {
			return err
		}
	}
	return nil
}

// readInput reads one input and closes it before the next one is opened
func readInput(globals *Globals, norm *normalize.Normalizer, path string) error {
	var r io.Reader = globals.Stdin
	source := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return outputErrorCommon(globals, codeInputOpenFailed, err.Error())
		}
		defer f.Close()
		r, source = f, path
	}
	if err := norm.Read(r, source); err != nil {
		if errors.Is(err, normalize.ErrMalformed) {
			return outputErrorCommon(globals, codeNormalizeFailed, err.Error(), "drop --strict to discard malformed lines")
		}
		return outputErrorCommon(globals, codeNormalizeFailed, err.Error())
	}
	return nil
}

// buildPipeline compiles the event filters; nil when none are set
func buildPipeline(typePattern string, excludes, where []string) (*filter.Pipeline, error) {
	var pattern *regexp.Regexp
	if typePattern != "" {
		re, err := regexp.Compile(typePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --type pattern: %w", err)
		}
		pattern = re
	}
	var excludeRes []*regexp.Regexp
	for _, x := range excludes {
		re, err := regexp.Compile(x)
		if err != nil {
			return nil, fmt.Errorf("invalid --exclude-type pattern: %w", err)
		}
		excludeRes = append(excludeRes, re)
	}
	var whereFilter *filter.WhereFilter
	if len(where) > 0 {
		wf, err := filter.NewWhereFilter(where)
		if err != nil {
			return nil, fmt.Errorf("invalid --where clause: %w", err)
		}
		whereFilter = wf
	}
	return filter.NewPipeline(pattern, excludeRes, whereFilter), nil
}
