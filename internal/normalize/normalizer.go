package normalize

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kaptinlin/jsonschema"
	"github.com/samber/lo"
	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/filter"
	"go.uber.org/zap"
)

//go:embed event.schema.json
var eventSchema []byte

// EventSchema returns the embedded raw event JSON schema
func EventSchema() []byte {
	return eventSchema
}

// ErrMalformed is returned in strict mode for the first line that fails to
// parse or validate
var ErrMalformed = errors.New("malformed event")

// maxLineSize bounds a single telemetry line
const maxLineSize = 10 * 1024 * 1024

// Options configures a Normalizer
type Options struct {
	Strict     bool             // fail on the first malformed line
	SchemaPath string           // replaces the embedded schema when set
	Pipeline   *filter.Pipeline // nil keeps every event
	Logger     *zap.Logger

	// OnMalformed is called for every discarded line
	OnMalformed func(source string, line int, err error)
}

// Stats counts what happened to input lines
type Stats struct {
	Lines     int `json:"lines"`
	Events    int `json:"events"`
	Malformed int `json:"malformed"`
	Filtered  int `json:"filtered"`
}

// Group is the sorted event sequence of one identity
type Group struct {
	Identity domain.Identity
	Events   []domain.Event
}

type keyedEvent struct {
	identity domain.Identity
	event    domain.Event
}

// Normalizer turns raw telemetry lines into per-identity event groups
type Normalizer struct {
	schema   *jsonschema.Schema
	pipeline *filter.Pipeline
	strict   bool
	logger   *zap.Logger
	onBad    func(string, int, error)

	events []keyedEvent
	stats  Stats
}

// New compiles the event schema and returns an empty normalizer
func New(opts Options) (*Normalizer, error) {
	data := eventSchema
	if opts.SchemaPath != "" {
		b, err := os.ReadFile(opts.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		data = b
	}
	schema, err := compileSchema(data)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		schema:   schema,
		pipeline: opts.Pipeline,
		strict:   opts.Strict,
		logger:   logger,
		onBad:    opts.OnMalformed,
	}, nil
}

func compileSchema(data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Read consumes NDJSON lines from r. source names the input in errors and logs.
func (n *Normalizer) Read(r io.Reader, source string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		n.stats.Lines++

		id, ev, err := n.Parse(b)
		if err != nil {
			if n.strict {
				return fmt.Errorf("%w: %s line %d: %v", ErrMalformed, source, line, err)
			}
			n.stats.Malformed++
			n.logger.Debug("discarding malformed line",
				zap.String("source", source),
				zap.Int("line", line),
				zap.Error(err),
			)
			if n.onBad != nil {
				n.onBad(source, line, err)
			}
			continue
		}
		if !n.pipeline.Match(&ev) {
			n.stats.Filtered++
			continue
		}
		n.events = append(n.events, keyedEvent{identity: id, event: ev})
		n.stats.Events++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", source, err)
	}
	return nil
}

// Parse validates one raw line and converts it
func (n *Normalizer) Parse(line []byte) (domain.Identity, domain.Event, error) {
	if !json.Valid(line) {
		return domain.Identity{}, domain.Event{}, errors.New("invalid json")
	}
	if result := n.schema.ValidateJSON(line); !result.IsValid() {
		return domain.Identity{}, domain.Event{}, fmt.Errorf("schema validation failed: %v", result.Errors)
	}
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.Identity{}, domain.Event{}, fmt.Errorf("decode: %w", err)
	}
	return raw.identity(), raw.event(), nil
}

// Stats returns the counters accumulated so far
func (n *Normalizer) Stats() Stats {
	return n.stats
}

// Groups partitions the events read so far by identity. Groups come back in
// identity key order; events within a group are stable-sorted by timestamp so
// ties keep arrival order.
func (n *Normalizer) Groups() []Group {
	byKey := lo.GroupBy(n.events, func(k keyedEvent) string {
		return k.identity.Key()
	})
	keys := lo.Keys(byKey)
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, key := range keys {
		members := byKey[key]
		events := lo.Map(members, func(k keyedEvent, _ int) domain.Event {
			return k.event
		})
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.Before(events[j].Timestamp)
		})
		groups = append(groups, Group{Identity: members[0].identity, Events: events})
	}
	return groups
}
