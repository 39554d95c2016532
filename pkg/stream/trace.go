package stream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// TraceWriter appends terminal Execution Records to a file, one JSON
// object per line. It plugs into a Scope's Emit hook or a feed consumer.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewTraceWriter opens (and creates) the trace file for appending.
func NewTraceWriter(path string) (*TraceWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //#nosec G304 -- user-provided trace path
	if err != nil {
		return nil, err
	}
	return &TraceWriter{file: file, enc: json.NewEncoder(file)}, nil
}

// Observe appends one record. Encoding errors are swallowed; a broken
// trace never fails the run it documents.
func (t *TraceWriter) Observe(rec *core.ExecutionRecord) {
	if t == nil || rec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.enc.Encode(rec)
}

// Close flushes and closes the underlying file.
func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}
