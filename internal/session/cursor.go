package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/vburojevic/wfsum/internal/domain"
	"github.com/vburojevic/wfsum/internal/filter"
	"go.uber.org/zap"
)

// ErrUnsorted is returned when events are not in non-decreasing time order
var ErrUnsorted = errors.New("events are not sorted by timestamp")

// Cursor folds one identity's time-ordered events into closed summaries.
// It is not safe for concurrent use; each identity gets its own cursor.
type Cursor struct {
	opts    options
	tree    *tree
	root    nodeID
	current nodeID
	prev    domain.Event
	seen    int
	out     []domain.Summary
	dropped int
	dups    int
}

// Result is the outcome of reconstructing one identity
type Result struct {
	Summaries []domain.Summary
	Events    int // events folded
	Dropped   int // unattributable events
	Collapsed int // value duplicates removed from the output
}

// NewCursor creates a cursor in its initial state (no root, no current)
func NewCursor(opts ...Option) *Cursor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Cursor{
		opts:    o,
		tree:    newTree(o.newID),
		root:    noNode,
		current: noNode,
	}
}

// Reconstruct folds a complete, sorted event sequence and returns the
// deduplicated summaries. An unsorted sequence is rejected before any event
// is folded.
func Reconstruct(events []domain.Event, opts ...Option) (*Result, error) {
	if err := CheckSorted(events); err != nil {
		return nil, err
	}
	c := NewCursor(opts...)
	for _, ev := range events {
		if err := c.Fold(ev); err != nil {
			return nil, err
		}
	}
	return &Result{
		Summaries: c.Finish(),
		Events:    c.seen,
		Dropped:   c.dropped,
		Collapsed: c.dups,
	}, nil
}

// CheckSorted verifies that timestamps never decrease
func CheckSorted(events []domain.Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			return fmt.Errorf("%w: event %d at %s precedes %s", ErrUnsorted, i,
				events[i].Timestamp.UTC().Format(time.RFC3339), events[i-1].Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

// Fold applies one event to the cursor
func (c *Cursor) Fold(ev domain.Event) error {
	ev.Type = domain.NormalizeType(ev.Type)

	if c.seen > 0 && ev.Timestamp.Before(c.prev.Timestamp) {
		return fmt.Errorf("%w: %s precedes %s", ErrUnsorted,
			ev.Timestamp.UTC().Format(time.RFC3339), c.prev.Timestamp.UTC().Format(time.RFC3339))
	}

	// A closed current with a live root falls back to the root
	if !c.tree.isOpen(c.current) && c.tree.isOpen(c.root) {
		c.current = c.root
	}
	if c.seen > 0 {
		c.checkSessionBreak(ev)
	}

	switch ev.Kind {
	case domain.KindStart:
		c.onStart(ev)
	case domain.KindEnd:
		c.onEnd(ev)
	case domain.KindOther:
		c.onOther(ev)
	}

	c.prev = ev
	c.seen++
	return nil
}

// Finish closes whatever is still open and returns the deduplicated output
func (c *Cursor) Finish() []domain.Summary {
	if c.tree.isOpen(c.current) {
		c.emit(c.tree.close(c.current))
	}
	if c.tree.isOpen(c.root) {
		c.emit(c.tree.close(c.root))
	}

	dedupe := filter.NewDedupeFilter()
	out := make([]domain.Summary, 0, len(c.out))
	for _, s := range c.out {
		r := dedupe.Check(s)
		if !r.ShouldEmit {
			c.opts.logger.Debug("collapsing duplicate summary",
				zap.String("summary_id", s.SummaryID),
				zap.String("digest", r.Digest),
				zap.Int("occurrence", r.Count),
			)
			continue
		}
		out = append(out, s)
	}
	c.dups = dedupe.Duplicates()
	return out
}

// Dropped returns how many events could not be attributed
func (c *Cursor) Dropped() int {
	return c.dropped
}

// Collapsed returns how many duplicate summaries Finish removed
func (c *Cursor) Collapsed() int {
	return c.dups
}

// checkSessionBreak forces a boundary when a non-app event arrives after a
// gap longer than the session break time. The open tree is cloned and the
// clone closed for output; the live current node is cleared and carries on
// as the new root.
func (c *Cursor) checkSessionBreak(ev domain.Event) {
	gap := ev.Timestamp.Sub(c.prev.Timestamp)
	if gap <= c.opts.sessionBreak || ev.IsApp() {
		return
	}

	target := noNode
	switch {
	case c.tree.isOpen(c.root):
		target = c.root
	case c.tree.isOpen(c.current):
		target = c.current
	default:
		return
	}

	snapshot := c.tree.clone(target)
	c.emit(c.tree.close(snapshot))
	c.root = snapshot
	if c.tree.isOpen(c.current) {
		c.tree.reset(c.current)
		c.root = c.current
	}
	c.observe(domain.ReasonSessionBreak, ev, gap)
}

func (c *Cursor) onStart(ev domain.Event) {
	idle := c.opts.idle

	if !c.tree.isOpen(c.root) {
		// A current left open outside a closed root ends here
		if c.tree.isOpen(c.current) {
			c.emit(c.tree.close(c.current))
		}
		if !ev.IsApp() && c.seen > 0 {
			root := c.tree.spawnApp(nil, idle)
			child := c.tree.spawn(ev, idle)
			c.tree.attach(root, child)
			c.root, c.current = root, child
			c.observe(domain.ReasonImplicitRoot, ev, 0)
			return
		}
		n := c.tree.spawn(ev, idle)
		c.root, c.current = n, n
		return
	}

	match := c.tree.findSimilarStart(c.current, ev)
	switch {
	case match == noNode:
		child := c.tree.spawn(ev, idle)
		c.tree.attach(c.current, child)
		c.current = child

	case match == c.current:
		c.tree.add(c.current, ev)
		c.observe(domain.ReasonContinuation, ev, 0)

	case c.tree.at(match).closed && c.tree.parentOf(match) != noNode:
		c.emit(c.tree.emittedOf(match))
		n := c.tree.spawn(ev, idle)
		c.tree.attach(c.tree.parentOf(match), n)
		c.current = n
		c.observe(domain.ReasonSiblingReopen, ev, 0)

	default:
		// An enclosing episode of the same type/mode starts again: it and
		// everything nested in it are over.
		c.emit(c.tree.close(match))
		if p := c.tree.parentOf(c.current); p != noNode {
			c.emit(c.tree.emittedOf(p))
		} else {
			c.emit(c.tree.emittedOf(c.current))
		}
		n := c.tree.spawn(ev, idle)
		if p := c.tree.parentOf(match); c.tree.isOpen(p) {
			c.tree.attach(p, n)
		}
		c.current = n
		if !c.tree.isOpen(c.root) {
			c.root = n
		}
		c.observe(domain.ReasonRestart, ev, 0)
	}
}

func (c *Cursor) onEnd(ev domain.Event) {
	if !c.tree.isOpen(c.current) || c.tree.findSimilarStart(c.current, ev) == noNode {
		c.dropped++
		c.opts.logger.Debug("dropping unattributable END",
			zap.String("type", ev.Type),
			zap.String("mode", ev.Mode),
			zap.Time("timestamp", ev.Timestamp),
		)
		c.observe(domain.ReasonUnattributed, ev, 0)
		return
	}

	parentCtx := c.tree.closingParent(c.current, ev)
	actualParent := c.tree.parentOf(c.current)

	switch {
	// only an END of the current node's own type/mode closes it as a child;
	// an END for an ancestor (app included) is routed to that ancestor
	case c.tree.matches(c.current, ev) && actualParent != noNode && c.tree.similar(parentCtx, actualParent):
		c.tree.add(c.current, ev)
		c.emit(c.tree.close(c.current))
		c.current = parentCtx

	case c.tree.similar(parentCtx, c.root):
		target := c.tree.similarEnd(c.current, ev)
		if c.tree.similar(target, c.root) {
			c.tree.add(c.root, ev)
			c.emit(c.tree.close(c.root))
			c.current = c.root
			return
		}
		c.tree.add(target, ev)
		c.emit(c.tree.close(target))
		c.current = parentCtx

	default:
		c.tree.add(c.current, ev)
		c.emit(c.tree.close(c.current))
		c.current = parentCtx
	}
}

func (c *Cursor) onOther(ev domain.Event) {
	if c.tree.isOpen(c.current) {
		c.tree.add(c.current, ev)
		return
	}

	// Stream begins mid-session or everything was closed: recover with an
	// implicit app node
	n := c.tree.spawnApp(&ev, c.opts.idle)
	c.current = n
	if !c.tree.isOpen(c.root) {
		c.root = n
	}
	c.observe(domain.ReasonImplicitStart, ev, 0)
}

func (c *Cursor) emit(summaries []domain.Summary) {
	c.out = append(c.out, summaries...)
}

func (c *Cursor) observe(reason string, ev domain.Event, gap time.Duration) {
	if c.opts.observer == nil {
		return
	}
	c.opts.observer(domain.SessionDebug{
		Type:          "session_debug",
		SchemaVersion: 1,
		Reason:        reason,
		Event:         ev.Kind.String(),
		EventType:     ev.Type,
		EventMode:     ev.Mode,
		Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339),
		GapSeconds:    gap.Seconds(),
	})
}
