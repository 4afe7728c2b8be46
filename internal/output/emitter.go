package output

import (
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/metrics"
)

// SummarySink receives the envelopes produced for one identity
type SummarySink interface {
	WriteSummaries(id domain.Identity, records []*domain.WorkflowSummary) error
}

// Emitter wraps summaries in WorkflowSummary envelopes and hands them to a sink
type Emitter struct {
	sink    SummarySink
	clock   clock.Clock
	newID   func() string
	metrics *metrics.Metrics
}

// EmitterOption configures an Emitter
type EmitterOption func(*Emitter)

// WithClock sets the clock used for syncts
func WithClock(c clock.Clock) EmitterOption {
	return func(e *Emitter) { e.clock = c }
}

// WithMessageIDs replaces the message id generator
func WithMessageIDs(fn func() string) EmitterOption {
	return func(e *Emitter) { e.newID = fn }
}

// WithMetrics publishes emitted counts to m
func WithMetrics(m *metrics.Metrics) EmitterOption {
	return func(e *Emitter) { e.metrics = m }
}

// NewEmitter creates an emitter writing to sink
func NewEmitter(sink SummarySink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sink:  sink,
		clock: clock.New(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit writes the summaries of one identity and returns how many were written
func (e *Emitter) Emit(id domain.Identity, summaries []domain.Summary) (int, error) {
	records := make([]*domain.WorkflowSummary, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, domain.NewWorkflowSummary(e.newID(), e.clock.Now(), id, s))
	}
	if err := e.sink.WriteSummaries(id, records); err != nil {
		return 0, err
	}
	if e.metrics != nil {
		e.metrics.SummariesEmitted.Add(float64(len(records)))
		e.metrics.SummariesPerIdentity.Observe(float64(len(records)))
	}
	return len(records), nil
}
