package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.RecordSink = (*RecordWriter)(nil)

// RecordWriter appends records as JSON lines to one file per site.
type RecordWriter struct {
	dir string
	mu  sync.Mutex
}

// NewRecordWriter creates a RecordWriter that writes under dir.
func NewRecordWriter(dir string) *RecordWriter {
	return &RecordWriter{dir: dir}
}

// Path returns the output file for site.
func (w *RecordWriter) Path(site string) string {
	return filepath.Join(w.dir, SiteFileName(site, ".jsonl"))
}

// WriteRecords encodes the batch first and appends it with a single write,
// so an encoding failure leaves the file untouched.
func (w *RecordWriter) WriteRecords(ctx context.Context, site string, records []*sitediff.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(site), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
