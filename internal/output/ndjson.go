package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/vburojevic/wfsum/internal/domain"
)

// SchemaVersion is stamped on every NDJSON record
const SchemaVersion = 1

// ErrorOutput is the NDJSON error record
type ErrorOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// ValidationOutput reports the outcome of a validate run
type ValidationOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Lines         int    `json:"lines"`
	Valid         int    `json:"valid"`
	Invalid       int    `json:"invalid"`
}

// InvalidLine is emitted for each line that fails validation
type InvalidLine struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Source        string `json:"source"`
	Line          int    `json:"line"`
	Error         string `json:"error"`
}

// NDJSONWriter writes one JSON object per line. It is safe for concurrent use.
type NDJSONWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewNDJSONWriter creates a new NDJSON writer
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{encoder: enc}
}

// Write encodes any value as one line
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(v)
}

// WriteSummaries writes each envelope as its own line
func (w *NDJSONWriter) WriteSummaries(_ domain.Identity, records []*domain.WorkflowSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range records {
		if err := w.encoder.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunStats writes the trailing run statistics record
func (w *NDJSONWriter) WriteRunStats(stats *domain.RunStats) error {
	return w.Write(stats)
}

// WriteDebug writes a session_debug record
func (w *NDJSONWriter) WriteDebug(d *domain.SessionDebug) error {
	return w.Write(d)
}

// WriteError writes an error record
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	out := &ErrorOutput{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
	}
	if len(hint) > 0 {
		out.Hint = hint[0]
	}
	return w.Write(out)
}

// WriteInvalidLine writes a validation failure for one input line
func (w *NDJSONWriter) WriteInvalidLine(source string, line int, err error) error {
	return w.Write(&InvalidLine{
		Type:          "invalid_line",
		SchemaVersion: SchemaVersion,
		Source:        source,
		Line:          line,
		Error:         err.Error(),
	})
}

// WriteValidation writes the validate summary record
func (w *NDJSONWriter) WriteValidation(lines, valid, invalid int) error {
	return w.Write(&ValidationOutput{
		Type:          "validation",
		SchemaVersion: SchemaVersion,
		Lines:         lines,
		Valid:         valid,
		Invalid:       invalid,
	})
}
