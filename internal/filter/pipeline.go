package filter

import (
	"regexp"

	"github.com/vburojevic/wfsum/internal/domain"
)

// Pipeline applies type include/exclude patterns and where clauses in order
type Pipeline struct {
	pattern  *regexp.Regexp
	excludes []*regexp.Regexp
	where    *WhereFilter
}

// NewPipeline builds a pipeline; it returns nil when no filter is configured
func NewPipeline(pattern *regexp.Regexp, excludes []*regexp.Regexp, where *WhereFilter) *Pipeline {
	if pattern == nil && len(excludes) == 0 && where == nil {
		return nil
	}
	return &Pipeline{pattern: pattern, excludes: excludes, where: where}
}

// Match reports whether an event passes every stage. A nil pipeline allows all.
func (p *Pipeline) Match(ev *domain.Event) bool {
	if p == nil {
		return true
	}
	if p.pattern != nil && !p.pattern.MatchString(ev.Type) {
		return false
	}
	for _, ex := range p.excludes {
		if ex.MatchString(ev.Type) {
			return false
		}
	}
	return p.where.Match(ev)
}
