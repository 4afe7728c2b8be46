package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/vburojevic/wfsum/internal/domain"
)

// DedupeFilter collapses summaries that are equal by value
type DedupeFilter struct {
	seen map[string]*dedupeEntry
}

type dedupeEntry struct {
	count int
}

// NewDedupeFilter creates a new deduplication filter
func NewDedupeFilter() *DedupeFilter {
	return &DedupeFilter{
		seen: make(map[string]*dedupeEntry),
	}
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool   // Whether this summary should be emitted
	Count      int    // Number of occurrences so far (1 = first occurrence)
	Digest     string // Canonical digest of the summary
}

// Check determines if a summary should be emitted or suppressed
func (f *DedupeFilter) Check(s domain.Summary) DedupeResult {
	key := SummaryDigest(s)

	if existing, ok := f.seen[key]; ok {
		existing.count++
		return DedupeResult{ShouldEmit: false, Count: existing.count, Digest: key}
	}

	f.seen[key] = &dedupeEntry{count: 1}
	return DedupeResult{ShouldEmit: true, Count: 1, Digest: key}
}

// Duplicates returns how many suppressed copies were seen in total
func (f *DedupeFilter) Duplicates() int {
	n := 0
	for _, e := range f.seen {
		n += e.count - 1
	}
	return n
}

// SummaryDigest returns the sha256 of the RFC 8785 canonical JSON form of a
// summary. Two summaries share a digest iff they are equal field by field.
func SummaryDigest(s domain.Summary) string {
	raw, err := json.Marshal(s)
	if err == nil {
		var canonical []byte
		if canonical, err = jcs.Transform(raw); err == nil {
			raw = canonical
		}
	}
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", s))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
