package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/wfsum/internal/config"
	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/normalize"
)

// testGlobals creates a Globals struct with captured stdout/stderr
func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &Globals{
		Format:  format,
		Quiet:   false,
		Verbose: false,
		Stdin:   &bytes.Buffer{},
		Stdout:  stdout,
		Stderr:  stderr,
		Config:  config.Default(),
	}, stdout, stderr
}

const (
	evAppStart = `{"eid":"START","ets":1700000000000,"actor":{"id":"u1"},"context":{"did":"d1","channel":"c1","pdata":{"id":"app","pid":"web"}},"edata":{"type":"app"}}`
	evImpr     = `{"eid":"IMPRESSION","ets":1700000005000,"actor":{"id":"u1"},"context":{"did":"d1","channel":"c1","pdata":{"id":"app","pid":"web"}},"edata":{"type":"app","pageid":"home","env":"home"}}`
	evAppEnd   = `{"eid":"END","ets":1700000010000,"actor":{"id":"u1"},"context":{"did":"d1","channel":"c1","pdata":{"id":"app","pid":"web"}},"edata":{"type":"app"}}`
	evStrayEnd = `{"eid":"END","ets":1700000000000,"actor":{"id":"u2"},"context":{"did":"d2","channel":"c1"},"edata":{"type":"content","mode":"play"}}`
)

func ndjsonLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// records decodes every NDJSON line of out
func records(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var recs []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		recs = append(recs, m)
	}
	return recs
}

func byType(recs []map[string]interface{}, typ string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, r := range recs {
		if r["type"] == typ {
			out = append(out, r)
		}
	}
	return out
}

// --- Config Command Tests ---

func TestConfigShowCmd_Run(t *testing.T) {
	t.Run("outputs config in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		output := stdout.String()
		assert.Contains(t, output, "Current Configuration:")
		assert.Contains(t, output, "format:")
		assert.Contains(t, output, "idle_time:          600s")
		assert.Contains(t, output, "session_break_time: 30m")
		assert.Contains(t, output, "split_dir:    (none)")
	})

	t.Run("outputs config in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "config", result["type"])
		assert.Contains(t, result, "format")
		assert.Contains(t, result, "summarizer")
		summarizer := result["summarizer"].(map[string]interface{})
		assert.Equal(t, float64(600), summarizer["idle_time"])
		assert.Equal(t, float64(4), summarizer["workers"])
	})
}

func TestConfigPathCmd_Run(t *testing.T) {
	t.Run("outputs path info in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &ConfigPathCmd{}

		require.NoError(t, cmd.Run(globals))

		output := stdout.String()
		// Either shows the path or says no config found
		assert.True(t, strings.Contains(output, "Config file:") || strings.Contains(output, "No configuration file found"))
	})

	t.Run("outputs path info in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &ConfigPathCmd{}

		require.NoError(t, cmd.Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "config_path", result["type"])
		assert.Contains(t, result, "found")
	})
}

func TestConfigGenerateCmd_Run(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	require.NoError(t, (&ConfigGenerateCmd{}).Run(globals))
	assert.Equal(t, config.Template, stdout.String())

	path := filepath.Join(t.TempDir(), "wfsum.yaml")
	require.NoError(t, os.WriteFile(path, stdout.Bytes(), 0o644))
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err, "generated template must load")
	assert.Equal(t, config.Default().Summarizer, cfg.Summarizer)
}

// --- Version Command Tests ---

func TestVersionCmd_Run(t *testing.T) {
	t.Run("outputs version in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &VersionCmd{}

		require.NoError(t, cmd.Run(globals))
		assert.Contains(t, stdout.String(), "wfsum version")
	})

	t.Run("outputs version in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &VersionCmd{}

		require.NoError(t, cmd.Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "version", result["type"])
		assert.Contains(t, result, "version")
		assert.Contains(t, result, "commit")
	})
}

// --- Schema Command Tests ---

func TestSchemaCmd_Run(t *testing.T) {
	t.Run("outputs every definition by default", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{}).Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		defs := result["definitions"].(map[string]interface{})
		for _, typ := range schemaTypes {
			assert.Contains(t, defs, typ)
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{Type: []string{" Run_Stats ", "unknown"}}).Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		defs := result["definitions"].(map[string]interface{})
		assert.Len(t, defs, 1)
		assert.Contains(t, defs, "run_stats")
	})
}

// --- Summarize Command Tests ---

func TestSummarizeCmd_NDJSON(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evImpr, evAppEnd))

	require.NoError(t, (&SummarizeCmd{}).run(context.Background(), globals))

	recs := records(t, stdout.String())
	summaries := byType(recs, "workflow_summary")
	require.Len(t, summaries, 1)
	assert.NotEmpty(t, summaries[0]["mid"])
	summary := summaries[0]["summary"].(map[string]interface{})
	assert.Equal(t, "app", summary["type"])
	assert.Equal(t, float64(10), summary["time_diff"])
	identity := summaries[0]["identity"].(map[string]interface{})
	assert.Equal(t, "u1", identity["actor"])
	assert.Equal(t, "app:web", identity["platform"])

	stats := byType(recs, "run_stats")
	require.Len(t, stats, 1)
	assert.Equal(t, float64(1), stats[0]["identities"])
	assert.Equal(t, float64(3), stats[0]["events"])
	assert.Equal(t, float64(1), stats[0]["summaries"])
}

func TestSummarizeCmd_InteractWithTypeOnly(t *testing.T) {
	touch := `{"eid":"INTERACT","ets":1700003000000,"actor":{"id":"u1"},"context":{"did":"d1","channel":"c1","pdata":{"id":"app","pid":"web"}},"edata":{"type":"TOUCH","pageid":"home"}}`
	end := `{"eid":"END","ets":1700003005000,"actor":{"id":"u1"},"context":{"did":"d1","channel":"c1","pdata":{"id":"app","pid":"web"}},"edata":{"type":"app"}}`
	globals, stdout, _ := testGlobals("ndjson")
	// the INTERACT arrives 50 minutes after START; as an app-level event it
	// must not force a session break
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, touch, end))

	require.NoError(t, (&SummarizeCmd{}).run(context.Background(), globals))

	summaries := byType(records(t, stdout.String()), "workflow_summary")
	require.Len(t, summaries, 1)
	summary := summaries[0]["summary"].(map[string]interface{})
	assert.Equal(t, "app", summary["type"])
	assert.Equal(t, float64(1), summary["interact_events_count"])
	assert.Equal(t, float64(3), summary["event_count"])
}

func TestSummarizeCmd_Text(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evImpr, evAppEnd))

	require.NoError(t, (&SummarizeCmd{}).run(context.Background(), globals))

	out := stdout.String()
	assert.Contains(t, out, "actor=u1 device=d1 channel=c1 platform=app:web")
	assert.Contains(t, out, "1 identities, 3 events (0 malformed, 0 dropped), 1 summaries (0 collapsed)")
}

func TestSummarizeCmd_Files(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.ndjson")
	second := filepath.Join(dir, "b.ndjson")
	// Events of one identity split across files still fold in time order
	require.NoError(t, os.WriteFile(first, []byte(ndjsonLines(evAppEnd, evStrayEnd)), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(ndjsonLines(evAppStart, "not json", evImpr)), 0o644))

	globals, stdout, _ := testGlobals("ndjson")
	cmd := &SummarizeCmd{Files: []string{first, second}}
	require.NoError(t, cmd.run(context.Background(), globals))

	recs := records(t, stdout.String())
	assert.Len(t, byType(recs, "workflow_summary"), 1)
	stats := byType(recs, "run_stats")[0]
	assert.Equal(t, float64(2), stats["identities"])
	assert.Equal(t, float64(1), stats["malformed"])
	assert.Equal(t, float64(1), stats["dropped"])
}

func TestReadInputClosesEachFile(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("needs /proc/self/fd")
	}
	openFDs := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		require.NoError(t, err)
		return len(entries)
	}

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, fmt.Sprintf("part-%d.ndjson", i))
		require.NoError(t, os.WriteFile(p, []byte(ndjsonLines(evAppStart)), 0o644))
		paths = append(paths, p)
	}

	globals, _, _ := testGlobals("ndjson")
	norm, err := normalize.New(normalize.Options{})
	require.NoError(t, err)

	before := openFDs()
	for _, p := range paths {
		require.NoError(t, readInput(globals, norm, p))
		assert.Equal(t, before, openFDs(), "%s left open", p)
	}
	assert.Equal(t, 5, norm.Stats().Events)
}

func TestSummarizeCmd_MissingFile(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	cmd := &SummarizeCmd{Files: []string{filepath.Join(t.TempDir(), "missing.ndjson")}}

	require.Error(t, cmd.run(context.Background(), globals))
	errs := byType(records(t, stdout.String()), "error")
	require.Len(t, errs, 1)
	assert.Equal(t, codeInputOpenFailed, errs[0]["code"])
}

func TestSummarizeCmd_Strict(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, `{"eid":"START"}`, evAppEnd))

	err := (&SummarizeCmd{Strict: true}).run(context.Background(), globals)
	require.Error(t, err)

	recs := records(t, stdout.String())
	require.Len(t, recs, 1)
	assert.Equal(t, "error", recs[0]["type"])
	assert.Equal(t, codeNormalizeFailed, recs[0]["code"])
	assert.Contains(t, recs[0]["message"], "stdin line 2")
}

func TestSummarizeCmd_InvalidFlags(t *testing.T) {
	tests := []struct {
		name   string
		format string
		cmd    SummarizeCmd
	}{
		{"negative idle time", "ndjson", SummarizeCmd{IdleTime: -1}},
		{"negative workers", "ndjson", SummarizeCmd{Workers: -2}},
		{"bad type regex", "ndjson", SummarizeCmd{Type: "("}},
		{"bad where clause", "ndjson", SummarizeCmd{Where: []string{"nooperator"}}},
		{"explain with text", "text", SummarizeCmd{Explain: true}},
		{"split dir with text", "text", SummarizeCmd{SplitDir: "out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			globals, stdout, stderr := testGlobals(tt.format)
			cmd := tt.cmd
			require.Error(t, cmd.run(context.Background(), globals))
			if tt.format == "ndjson" {
				errs := byType(records(t, stdout.String()), "error")
				require.Len(t, errs, 1)
				assert.Equal(t, codeInvalidFlags, errs[0]["code"])
			} else {
				assert.Contains(t, stderr.String(), codeInvalidFlags)
			}
		})
	}
}

func TestSummarizeCmd_SplitDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "split")
	globals, stdout, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evImpr, evAppEnd))

	require.NoError(t, (&SummarizeCmd{SplitDir: dir}).run(context.Background(), globals))

	recs := records(t, stdout.String())
	assert.Empty(t, byType(recs, "workflow_summary"), "summaries go to files")
	assert.Len(t, byType(recs, "run_stats"), 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Len(t, byType(records(t, string(data)), "workflow_summary"), 1)
}

func TestSummarizeCmd_ConfigFallbacks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "from-config")
	globals, _, _ := testGlobals("ndjson")
	globals.Config.Output.SplitDir = dir
	globals.Config.Summarizer.Workers = 2

	cmd := &SummarizeCmd{}
	s, err := cmd.settings(globals.Config)
	require.NoError(t, err)
	assert.Equal(t, dir, s.splitDir)
	assert.Equal(t, 2, s.workers)

	cmd = &SummarizeCmd{Workers: 8, SessionBreak: 5}
	s, err = cmd.settings(globals.Config)
	require.NoError(t, err)
	assert.Equal(t, 8, s.workers, "flag wins over config")
	assert.Equal(t, "5m0s", s.sessionBreak.String())
}

func TestSummarizeCmd_MetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wfsum.prom")
	globals, _, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evImpr, evAppEnd))

	require.NoError(t, (&SummarizeCmd{MetricsFile: path}).run(context.Background(), globals))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "wfsum_summaries_emitted_total 1")
}

func TestSummarizeCmd_Explain(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evStrayEnd))

	require.NoError(t, (&SummarizeCmd{Explain: true}).run(context.Background(), globals))

	recs := records(t, stdout.String())
	debug := byType(recs, "session_debug")
	require.Len(t, debug, 1)
	assert.Equal(t, domain.ReasonUnattributed, debug[0]["reason"])
	assert.Equal(t, "END", debug[0]["event"])
	assert.NotEmpty(t, debug[0]["identity"])

	stats := byType(recs, "run_stats")[0]
	assert.Equal(t, float64(1), stats["dropped"])
	assert.Equal(t, float64(0), stats["summaries"])
}

func TestSummarizeCmd_Quiet(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	globals.Quiet = true
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evAppEnd))

	require.NoError(t, (&SummarizeCmd{}).run(context.Background(), globals))

	recs := records(t, stdout.String())
	assert.Len(t, byType(recs, "workflow_summary"), 1)
	assert.Empty(t, byType(recs, "run_stats"))
}

func TestSummarizeCmd_TypeFilter(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evImpr, evAppEnd, evStrayEnd))

	require.NoError(t, (&SummarizeCmd{ExcludeType: []string{"^content$"}}).run(context.Background(), globals))

	stats := byType(records(t, stdout.String()), "run_stats")[0]
	assert.Equal(t, float64(1), stats["identities"])
	assert.Equal(t, float64(0), stats["dropped"])
}

// --- Validate Command Tests ---

func TestValidateCmd_Run(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, evAppEnd))

		require.NoError(t, (&ValidateCmd{}).Run(globals))

		recs := records(t, stdout.String())
		require.Len(t, recs, 1)
		assert.Equal(t, "validation", recs[0]["type"])
		assert.Equal(t, float64(2), recs[0]["valid"])
		assert.Equal(t, float64(0), recs[0]["invalid"])
	})

	t.Run("reports invalid lines", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, `{"eid":"START","ets":"soon","actor":{"id":"u1"}}`, "", "garbage"))

		require.Error(t, (&ValidateCmd{}).Run(globals))

		recs := records(t, stdout.String())
		invalid := byType(recs, "invalid_line")
		require.Len(t, invalid, 2)
		assert.Equal(t, float64(2), invalid[0]["line"])
		assert.Equal(t, float64(4), invalid[1]["line"])
		assert.Equal(t, "stdin", invalid[0]["source"])

		summary := byType(recs, "validation")[0]
		assert.Equal(t, float64(3), summary["lines"])
		assert.Equal(t, float64(1), summary["valid"])
		assert.Equal(t, float64(2), summary["invalid"])
	})

	t.Run("text output", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		globals.Stdin = strings.NewReader(ndjsonLines(evAppStart, "garbage"))

		require.Error(t, (&ValidateCmd{}).Run(globals))
		assert.Contains(t, stdout.String(), "stdin:2:")
		assert.Contains(t, stdout.String(), "2 lines, 1 valid, 1 invalid")
	})
}

// --- Helpers ---

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, "text", resolveFormat("text", &bytes.Buffer{}))
	assert.Equal(t, "ndjson", resolveFormat("ndjson", &bytes.Buffer{}))
	assert.Equal(t, "ndjson", resolveFormat("auto", &bytes.Buffer{}), "non-terminal writers get ndjson")
}

func TestNewGlobalsWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Format = "ndjson"
	cfg.Verbose = true

	globals := NewGlobalsWithConfig(&CLI{Quiet: true}, cfg)
	assert.Equal(t, "ndjson", globals.Format, "empty flag falls back to config")
	assert.True(t, globals.Quiet)
	assert.True(t, globals.Verbose)
	assert.Same(t, cfg, globals.Config)
}

func TestBuildPipeline(t *testing.T) {
	p, err := buildPipeline("", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = buildPipeline("^content", []string{"assess"}, []string{"eid=START"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Match(&domain.Event{Name: "START", Type: "content"}))
	assert.False(t, p.Match(&domain.Event{Name: "END", Type: "content"}))
	assert.False(t, p.Match(&domain.Event{Name: "START", Type: "app"}))

	_, err = buildPipeline("", []string{"["}, nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	globals, _, stderr := testGlobals("ndjson")
	newLogger(globals).Debug("hidden")
	assert.Empty(t, stderr.String())

	globals.Verbose = true
	logger := newLogger(globals)
	logger.Debug("shown")
	require.NoError(t, logger.Sync())
	assert.Contains(t, stderr.String(), `"msg":"shown"`)
	assert.Contains(t, stderr.String(), `"component":"wfsum"`)
}
