package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wfsum"

// Metrics holds the collectors of one summarize run. Each run owns its
// registry so the exposition file only carries this run's numbers.
type Metrics struct {
	registry *prometheus.Registry

	// SummariesEmitted counts workflow summaries written
	SummariesEmitted prometheus.Counter
	// SummariesPerIdentity observes how many summaries each identity produced
	SummariesPerIdentity prometheus.Histogram
	// EventsDropped counts unattributable events, by event kind
	EventsDropped *prometheus.CounterVec
	// SummariesCollapsed counts value-duplicate summaries removed per identity
	SummariesCollapsed prometheus.Counter
	// EventsMalformed counts input lines discarded by the normalizer
	EventsMalformed prometheus.Counter
	// Identities counts reconstructed identities
	Identities prometheus.Counter
	// ReconstructSeconds measures per-identity reconstruction time
	ReconstructSeconds prometheus.Histogram
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SummariesEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_emitted_total",
			Help:      "Total workflow summaries emitted",
		}),
		SummariesPerIdentity: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summaries_per_identity",
			Help:      "Distribution of summaries emitted per identity",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events that could not be attributed to an open session",
		}, []string{"kind"}),
		SummariesCollapsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_collapsed_total",
			Help:      "Duplicate summaries flushed on more than one path and collapsed",
		}),
		EventsMalformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_malformed_total",
			Help:      "Input lines discarded as malformed",
		}),
		Identities: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_total",
			Help:      "Identities reconstructed",
		}),
		ReconstructSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconstruct_duration_seconds",
			Help:      "Per-identity reconstruction latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes the text exposition of every collector to path
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
