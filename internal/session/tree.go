package session

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/vburojevic/wfsum/internal/domain"
)

// nodeID addresses a summary node inside a tree
type nodeID int

const noNode nodeID = -1

// interactTypes are the INTERACT subtypes counted as user interactions
var interactTypes = []string{
	"touch", "drag", "drop", "pinch", "zoom", "shake", "rotate", "speak", "listen",
	"write", "draw", "start", "end", "choose", "activate", "scroll", "click", "edit",
	"submit", "search", "dnd", "added", "removed", "selected",
}

// node is one reconstructed session or episode. Children are owned by the
// node; parent is a relation only.
type node struct {
	id       string
	typ      string
	mode     string
	events   []domain.Event
	closed   bool
	parent   nodeID
	children []nodeID
	idle     time.Duration
	emitted  []domain.Summary
}

// tree is an arena of summary nodes for one identity. Nodes are never freed
// individually; the whole arena goes away with the cursor.
type tree struct {
	nodes []node
	newID func() string
}

func newTree(newID func() string) *tree {
	return &tree{newID: newID}
}

func (t *tree) at(id nodeID) *node {
	return &t.nodes[id]
}

func (t *tree) alloc(n node) nodeID {
	t.nodes = append(t.nodes, n)
	return nodeID(len(t.nodes) - 1)
}

// spawn creates an open node of the event's own type and mode
func (t *tree) spawn(ev domain.Event, idle time.Duration) nodeID {
	return t.alloc(node{
		id:     t.newID(),
		typ:    domain.NormalizeType(ev.Type),
		mode:   ev.Mode,
		events: []domain.Event{ev},
		parent: noNode,
		idle:   idle,
	})
}

// spawnApp creates an open app-level node. When seed is non-nil its event is
// folded in as the first event.
func (t *tree) spawnApp(seed *domain.Event, idle time.Duration) nodeID {
	n := node{
		id:     t.newID(),
		typ:    domain.TypeApp,
		parent: noNode,
		idle:   idle,
	}
	if seed != nil {
		n.events = []domain.Event{*seed}
	}
	return t.alloc(n)
}

func (t *tree) isOpen(id nodeID) bool {
	return id != noNode && !t.nodes[id].closed
}

func (t *tree) parentOf(id nodeID) nodeID {
	if id == noNode {
		return noNode
	}
	return t.nodes[id].parent
}

// add appends an event to an open node. Closed nodes are frozen.
func (t *tree) add(id nodeID, ev domain.Event) {
	n := t.at(id)
	if n.closed {
		return
	}
	n.events = append(n.events, ev)
}

// attach makes child a child of parent. The child's first event is folded
// into the parent so the parent span covers it.
func (t *tree) attach(parent, child nodeID) {
	c := t.at(child)
	c.parent = parent
	c.idle = t.at(parent).idle
	p := t.at(parent)
	p.children = append(p.children, child)
	if len(c.events) > 0 {
		t.add(parent, c.events[0])
	}
}

// detach removes a node from its parent's children
func (t *tree) detach(id nodeID) {
	n := t.at(id)
	if n.parent == noNode {
		return
	}
	p := t.at(n.parent)
	p.children = lo.Without(p.children, id)
	n.parent = noNode
}

// similar reports whether two nodes share type and mode
func (t *tree) similar(a, b nodeID) bool {
	if a == noNode || b == noNode {
		return false
	}
	na, nb := t.at(a), t.at(b)
	return na.typ == nb.typ && na.mode == nb.mode
}

// matches reports whether a node has the event's type and mode
func (t *tree) matches(id nodeID, ev domain.Event) bool {
	n := t.at(id)
	return n.typ == domain.NormalizeType(ev.Type) && n.mode == ev.Mode
}

// findSimilarStart walks from id up through its ancestors and returns the
// first node matching the event, or noNode.
func (t *tree) findSimilarStart(id nodeID, ev domain.Event) nodeID {
	for cur := id; cur != noNode; cur = t.at(cur).parent {
		if t.matches(cur, ev) {
			return cur
		}
	}
	return noNode
}

// closingParent returns the node that becomes current once the END event
// closes its matching episode: the matching node's parent, or the node
// itself when it is a root. Without any match the topmost ancestor is
// returned.
func (t *tree) closingParent(id nodeID, ev domain.Event) nodeID {
	cur := id
	for {
		n := t.at(cur)
		if t.matches(cur, ev) {
			if n.parent == noNode {
				return cur
			}
			return n.parent
		}
		if n.parent == noNode {
			return cur
		}
		cur = n.parent
	}
}

// similarEnd returns the nearest node (id or an ancestor) matching the event,
// falling back to the topmost ancestor.
func (t *tree) similarEnd(id nodeID, ev domain.Event) nodeID {
	cur := id
	for {
		if t.matches(cur, ev) {
			return cur
		}
		p := t.at(cur).parent
		if p == noNode {
			return cur
		}
		cur = p
	}
}

// close freezes a node and its open descendants, returning the summaries
// produced by this call. Closing a closed node produces nothing.
func (t *tree) close(id nodeID) []domain.Summary {
	if t.at(id).closed {
		return nil
	}
	var out []domain.Summary
	// children slice is stable during the loop; closing never attaches
	for _, child := range t.at(id).children {
		out = append(out, t.close(child)...)
	}

	n := t.at(id)
	n.closed = true
	if len(n.events) == 0 {
		return out
	}
	s := t.summarize(id)
	n.emitted = append(n.emitted, s)
	return append(out, s)
}

// emittedOf returns every summary produced by a node so far
func (t *tree) emittedOf(id nodeID) []domain.Summary {
	if id == noNode {
		return nil
	}
	return t.at(id).emitted
}

// clone copies a node and its open descendants into fresh arena slots. The
// copy keeps the source identity and accumulated events; closed descendants
// are not copied since their summaries already exist.
func (t *tree) clone(id nodeID) nodeID {
	src := *t.at(id)
	cp := node{
		id:     src.id,
		typ:    src.typ,
		mode:   src.mode,
		events: append([]domain.Event(nil), src.events...),
		closed: src.closed,
		parent: src.parent,
		idle:   src.idle,
	}
	cid := t.alloc(cp)
	for _, child := range src.children {
		if t.at(child).closed {
			continue
		}
		cc := t.clone(child)
		t.at(cc).parent = cid
		t.at(cid).children = append(t.at(cid).children, cc)
	}
	return cid
}

// reset clears a live node so later events start it afresh: it gets a new
// identity, loses its events and children, and leaves its parent.
func (t *tree) reset(id nodeID) {
	t.detach(id)
	n := t.at(id)
	n.id = t.newID()
	n.events = nil
	n.children = nil
	n.closed = false
}

// reachable lists the nodes reachable from the given roots through children
func (t *tree) reachable(roots ...nodeID) []nodeID {
	seen := map[nodeID]bool{}
	var out []nodeID
	var walk func(nodeID)
	walk = func(id nodeID) {
		if id == noNode || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, c := range t.at(id).children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// summarize builds the summary record of a node from its accumulated events
func (t *tree) summarize(id nodeID) domain.Summary {
	n := t.at(id)
	first, last := n.events[0], n.events[len(n.events)-1]

	s := domain.Summary{
		SummaryID:  n.id,
		Type:       n.typ,
		Mode:       n.mode,
		StartTime:  first.Timestamp,
		EndTime:    last.Timestamp,
		TimeDiff:   last.Timestamp.Sub(first.Timestamp).Seconds(),
		EventCount: len(n.events),
	}
	if n.parent != noNode {
		s.ParentID = t.at(n.parent).id
	}

	counts := map[string]int{}
	pageIdx := map[string]int{}
	envIdx := map[string]int{}
	lastPage, lastEnv := -1, -1
	prev := first.Timestamp

	for _, ev := range n.events {
		gap := ev.Timestamp.Sub(prev)
		prev = ev.Timestamp
		spent := 0.0
		if gap > 0 && gap <= n.idle {
			spent = gap.Seconds()
		}
		s.TimeSpent += spent
		if lastPage >= 0 {
			s.PageSummary[lastPage].TimeSpent += spent
		}
		if lastEnv >= 0 {
			s.EnvSummary[lastEnv].TimeSpent += spent
		}

		counts[ev.Name]++

		switch ev.Name {
		case "INTERACT":
			if lo.Contains(interactTypes, ev.InteractType) {
				s.InteractEvents++
			}
		case "IMPRESSION":
			lastPage, lastEnv = -1, -1
			if ev.PageID != "" {
				i, ok := pageIdx[ev.PageID]
				if !ok {
					i = len(s.PageSummary)
					pageIdx[ev.PageID] = i
					s.PageSummary = append(s.PageSummary, domain.PageSummary{
						PageID: ev.PageID,
						Type:   ev.PageType,
						Env:    ev.Env,
					})
				}
				s.PageSummary[i].Visits++
				lastPage = i
			}
			if ev.Env != "" {
				i, ok := envIdx[ev.Env]
				if !ok {
					i = len(s.EnvSummary)
					envIdx[ev.Env] = i
					s.EnvSummary = append(s.EnvSummary, domain.EnvSummary{Env: ev.Env})
				}
				s.EnvSummary[i].Visits++
				lastEnv = i
			}
		case "ASSESS":
			s.ItemResponses = append(s.ItemResponses, domain.ItemResponse{
				ItemID:    ev.ItemID,
				Score:     ev.Score,
				Pass:      ev.Pass,
				Timestamp: ev.Timestamp,
			})
		}
	}

	names := lo.Keys(counts)
	sort.Strings(names)
	s.EventsSummary = lo.Map(names, func(name string, _ int) domain.EventCount {
		return domain.EventCount{Name: name, Count: counts[name]}
	})
	return s
}
