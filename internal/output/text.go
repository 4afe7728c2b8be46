package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/vburojevic/wfsum/internal/domain"
)

// TextWriter renders summaries as one table per identity
type TextWriter struct {
	w io.Writer
}

// NewTextWriter creates a new text writer
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// WriteSummaries renders the records of one identity
func (t *TextWriter) WriteSummaries(id domain.Identity, records []*domain.WorkflowSummary) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(t.w, "actor=%s device=%s channel=%s platform=%s\n",
		id.Actor, id.Device, id.Channel, id.Platform); err != nil {
		return err
	}

	table := tablewriter.NewWriter(t.w)
	table.Header("Summary", "Parent", "Type", "Mode", "Start", "End", "Spent", "Events")
	for _, r := range records {
		s := r.Summary
		row := []string{
			s.SummaryID,
			s.ParentID,
			s.Type,
			s.Mode,
			s.StartTime.UTC().Format(time.RFC3339),
			s.EndTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.TimeSpent, 'f', -1, 64) + "s",
			strconv.Itoa(s.EventCount),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteRunStats prints the run statistics line
func (t *TextWriter) WriteRunStats(stats *domain.RunStats) error {
	_, err := fmt.Fprintf(t.w, "%d identities, %d events (%d malformed, %d dropped), %d summaries (%d collapsed)\n",
		stats.Identities, stats.Events, stats.Malformed, stats.Dropped, stats.Summaries, stats.Collapsed)
	return err
}
