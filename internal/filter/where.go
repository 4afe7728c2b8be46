package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/vburojevic/wfsum/internal/domain"
)

// whereOperators are tried longest first so "!=" is not read as "="
var whereOperators = []string{"!~", ">=", "<=", "!=", "~", "=", "^", "$"}

// eventFields maps --where field names to event accessors. Unknown fields
// read as the empty string.
var eventFields = map[string]func(*domain.Event) string{
	"eid":    func(ev *domain.Event) string { return ev.Name },
	"name":   func(ev *domain.Event) string { return ev.Name },
	"kind":   func(ev *domain.Event) string { return ev.Kind.String() },
	"type":   func(ev *domain.Event) string { return ev.Type },
	"mode":   func(ev *domain.Event) string { return ev.Mode },
	"page":   func(ev *domain.Event) string { return ev.PageID },
	"pageid": func(ev *domain.Event) string { return ev.PageID },
	"env":    func(ev *domain.Event) string { return ev.Env },
	"timestamp": func(ev *domain.Event) string {
		return ev.Timestamp.UTC().Format(time.RFC3339)
	},
}

// WhereClause represents a parsed --where condition
type WhereClause struct {
	Field    string
	Operator string
	Value    string

	get   func(*domain.Event) string
	match func(ev *domain.Event, field string) bool
}

// ParseWhereClause parses a where clause like "type=content" or "eid~IMPRESS".
// Supported operators: =, !=, ~, !~, ^, $ and, on timestamp only, >= and <=.
func ParseWhereClause(clause string) (*WhereClause, error) {
	op, idx := "", -1
	for _, candidate := range whereOperators {
		if i := strings.Index(clause, candidate); i > 0 {
			op, idx = candidate, i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("no valid operator found in where clause: %s (use %s)", clause, strings.Join(whereOperators, ", "))
	}

	wc := &WhereClause{
		Field:    strings.TrimSpace(clause[:idx]),
		Operator: op,
		Value:    strings.TrimSpace(clause[idx+len(op):]),
	}
	if wc.Field == "" || wc.Value == "" {
		return nil, fmt.Errorf("invalid where clause: %s", clause)
	}
	wc.get = eventFields[strings.ToLower(wc.Field)]

	matcher, err := wc.compile()
	if err != nil {
		return nil, fmt.Errorf("where clause %q: %w", clause, err)
	}
	wc.match = matcher
	return wc, nil
}

func (wc *WhereClause) compile() (func(*domain.Event, string) bool, error) {
	value := wc.Value
	switch wc.Operator {
	case "=":
		return func(_ *domain.Event, f string) bool { return f == value }, nil
	case "!=":
		return func(_ *domain.Event, f string) bool { return f != value }, nil
	case "^":
		return func(_ *domain.Event, f string) bool { return strings.HasPrefix(f, value) }, nil
	case "$":
		return func(_ *domain.Event, f string) bool { return strings.HasSuffix(f, value) }, nil
	case "~", "!~":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		negate := wc.Operator == "!~"
		return func(_ *domain.Event, f string) bool { return re.MatchString(f) != negate }, nil
	case ">=", "<=":
		if !strings.EqualFold(wc.Field, "timestamp") {
			return nil, fmt.Errorf("operator %s only applies to timestamp", wc.Operator)
		}
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		if wc.Operator == ">=" {
			return func(ev *domain.Event, _ string) bool { return !ev.Timestamp.Before(ts) }, nil
		}
		return func(ev *domain.Event, _ string) bool { return !ev.Timestamp.After(ts) }, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", wc.Operator)
}

// Match checks if an event matches this where clause
func (wc *WhereClause) Match(ev *domain.Event) bool {
	field := ""
	if wc.get != nil {
		field = wc.get(ev)
	}
	return wc.match(ev, field)
}

// WhereFilter applies multiple where clauses (AND logic)
type WhereFilter struct {
	clauses []*WhereClause
}

// NewWhereFilter creates a filter from where clause strings; nil when there are none
func NewWhereFilter(whereClauses []string) (*WhereFilter, error) {
	if len(whereClauses) == 0 {
		return nil, nil
	}

	f := &WhereFilter{clauses: make([]*WhereClause, 0, len(whereClauses))}
	for _, clause := range whereClauses {
		wc, err := ParseWhereClause(clause)
		if err != nil {
			return nil, err
		}
		f.clauses = append(f.clauses, wc)
	}
	return f, nil
}

// Match reports whether the event satisfies every clause. A nil filter allows all.
func (f *WhereFilter) Match(ev *domain.Event) bool {
	if f == nil {
		return true
	}
	return lo.EveryBy(f.clauses, func(wc *WhereClause) bool { return wc.Match(ev) })
}
