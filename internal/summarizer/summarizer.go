package summarizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/metrics"
	"github.com/vburojevic/wfsum/internal/normalize"
	"github.com/vburojevic/wfsum/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of identities reconstructed in parallel
const DefaultWorkers = 4

// Config configures a Summarizer
type Config struct {
	IdleTime     time.Duration
	SessionBreak time.Duration
	Workers      int
	Logger       *zap.Logger
	Metrics      *metrics.Metrics // optional
	Clock        clock.Clock

	// Debug receives notable state transitions. Calls are serialized.
	Debug func(domain.SessionDebug)
}

// IdentityResult is the reconstruction output of one identity
type IdentityResult struct {
	Identity  domain.Identity
	Summaries []domain.Summary
	Events    int
	Dropped   int
	Collapsed int
}

// Summarizer reconstructs many identities concurrently
type Summarizer struct {
	cfg     Config
	debugMu sync.Mutex
}

// New creates a Summarizer, filling unset fields with defaults
func New(cfg Config) *Summarizer {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Summarizer{cfg: cfg}
}

// Run reconstructs every group. Results keep the order of groups. The first
// failing identity cancels the rest and its error is returned.
func (s *Summarizer) Run(ctx context.Context, groups []normalize.Group) ([]IdentityResult, error) {
	results := make([]IdentityResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, group := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.reconstruct(group)
			if err != nil {
				return fmt.Errorf("identity %s: %w", group.Identity.Key(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Summarizer) reconstruct(group normalize.Group) (IdentityResult, error) {
	logger := s.cfg.Logger.With(zap.String("identity", group.Identity.Key()))
	opts := []session.Option{
		session.WithIdleTime(s.cfg.IdleTime),
		session.WithSessionBreak(s.cfg.SessionBreak),
		session.WithLogger(logger),
	}
	if s.cfg.Debug != nil {
		id := group.Identity
		opts = append(opts, session.WithObserver(func(d domain.SessionDebug) {
			d.Identity = id.Key()
			s.debugMu.Lock()
			defer s.debugMu.Unlock()
			s.cfg.Debug(d)
		}))
	}

	start := s.cfg.Clock.Now()
	res, err := session.Reconstruct(group.Events, opts...)
	if err != nil {
		return IdentityResult{}, err
	}
	elapsed := s.cfg.Clock.Since(start)

	logger.Debug("identity reconstructed",
		zap.Int("events", res.Events),
		zap.Int("summaries", len(res.Summaries)),
		zap.Int("dropped", res.Dropped),
		zap.Int("collapsed", res.Collapsed),
		zap.Duration("elapsed", elapsed),
	)

	if m := s.cfg.Metrics; m != nil {
		m.Identities.Inc()
		m.ReconstructSeconds.Observe(elapsed.Seconds())
		if res.Dropped > 0 {
			m.EventsDropped.WithLabelValues(domain.KindEnd.String()).Add(float64(res.Dropped))
		}
		m.SummariesCollapsed.Add(float64(res.Collapsed))
	}

	return IdentityResult{
		Identity:  group.Identity,
		Summaries: res.Summaries,
		Events:    res.Events,
		Dropped:   res.Dropped,
		Collapsed: res.Collapsed,
	}, nil
}
