package output

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/vburojevic/wfsum/internal/domain"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PartitionWriter writes each identity's summaries to its own NDJSON file
// under dir. Only one file is open at a time.
type PartitionWriter struct {
	dir            string
	outputFile     *os.File
	bufferedWriter *bufio.Writer
	paths          []string
}

// NewPartitionWriter creates dir if needed
func NewPartitionWriter(dir string) (*PartitionWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create split dir: %w", err)
	}
	return &PartitionWriter{dir: dir}, nil
}

// PartitionPath returns the file an identity is written to
func PartitionPath(dir string, id domain.Identity) string {
	key := id.Key()
	sum := sha256.Sum256([]byte(key))
	name := unsafeName.ReplaceAllString(key, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.ndjson", name, hex.EncodeToString(sum[:4])))
}

// WriteSummaries rotates to the identity's file and writes its records
func (p *PartitionWriter) WriteSummaries(id domain.Identity, records []*domain.WorkflowSummary) error {
	if len(records) == 0 {
		return nil
	}
	w, err := p.open(PartitionPath(p.dir, id))
	if err != nil {
		return err
	}
	return NewNDJSONWriter(w).WriteSummaries(id, records)
}

func (p *PartitionWriter) open(path string) (*bufio.Writer, error) {
	if err := p.Close(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	p.outputFile = f
	p.bufferedWriter = bufio.NewWriter(f)
	p.paths = append(p.paths, path)
	return p.bufferedWriter, nil
}

// Paths lists the files written so far
func (p *PartitionWriter) Paths() []string {
	return p.paths
}

// Close flushes and closes the current file
func (p *PartitionWriter) Close() error {
	var err error
	if p.bufferedWriter != nil {
		err = p.bufferedWriter.Flush()
		p.bufferedWriter = nil
	}
	if p.outputFile != nil {
		if cerr := p.outputFile.Close(); err == nil {
			err = cerr
		}
		p.outputFile = nil
	}
	return err
}
