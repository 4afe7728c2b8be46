package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/vburojevic/wfsum/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultIdleTime is the gap after which time stops counting as spent
	DefaultIdleTime = 600 * time.Second
	// DefaultSessionBreak is the gap that forces a hard session boundary
	DefaultSessionBreak = 30 * time.Minute
)

type options struct {
	idle         time.Duration
	sessionBreak time.Duration
	logger       *zap.Logger
	observer     func(domain.SessionDebug)
	newID        func() string
}

// Option configures a Cursor
type Option func(*options)

// WithIdleTime sets the idle budget inherited by every node
func WithIdleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idle = d
		}
	}
}

// WithSessionBreak sets the maximum inter-event gap before a forced break
func WithSessionBreak(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sessionBreak = d
		}
	}
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a callback for notable transitions
func WithObserver(fn func(domain.SessionDebug)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithIDGenerator replaces the summary id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func defaultOptions() options {
	return options{
		idle:         DefaultIdleTime,
		sessionBreak: DefaultSessionBreak,
		logger:       zap.NewNop(),
		newID:        uuid.NewString,
	}
}
