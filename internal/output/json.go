package output

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/SiteMapper/internal/state"
)

// JSONWriter writes records as JSON. HTML escaping is off so titles and
// URLs keep their characters.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteSitemap writes the record array. An empty sitemap is written as
// [] rather than null.
func (j *JSONWriter) WriteSitemap(records []state.PageRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if records == nil {
		records = []state.PageRecord{}
	}
	return j.encode(records, j.pretty)
}

// WriteRecord writes one record as a JSON line in streaming mode.
func (j *JSONWriter) WriteRecord(record state.PageRecord) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	return j.encode(record, false)
}

func (j *JSONWriter) encode(v interface{}, pretty bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := j.writer.Write(buf.Bytes())
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch w := j.writer.(type) {
	case interface{ Flush() error }:
		return w.Flush()
	case interface{ Sync() error }:
		return w.Sync()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
