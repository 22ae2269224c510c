// Package output writes the sitemap.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	errs "github.com/PentesterFlow/SiteMapper/internal/errors"
	"github.com/PentesterFlow/SiteMapper/internal/state"
)

// Writer defines the interface for sitemap writers.
type Writer interface {
	// WriteSitemap writes the complete record array.
	WriteSitemap(records []state.PageRecord) error

	// WriteRecord writes a single record as it is produced (streaming).
	WriteRecord(record state.PageRecord) error

	// Flush flushes any buffered output.
	Flush() error

	// Close closes the writer.
	Close() error
}

// Config holds output configuration.
type Config struct {
	FilePath string `json:"file" yaml:"file"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	// StreamPath, when set, receives every record as a JSON line while
	// the crawl runs.
	StreamPath string `json:"stream_file,omitempty" yaml:"stream_file,omitempty"`
}

// sitemapMode is the permission of the written sitemap file.
const sitemapMode = 0644

// NewWriter creates a sitemap writer over w.
func NewWriter(w io.Writer, config Config) Writer {
	return NewJSONWriter(w, config.Pretty, false)
}

// WriteFile writes records to path as a JSON array. The file is written to
// a temporary sibling first and renamed into place. Failures are Output
// errors and therefore fatal.
func WriteFile(path string, records []state.PageRecord, pretty bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.NewOutputError(path, fmt.Errorf("create directory: %w", err))
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errs.NewOutputError(path, err)
	}
	tmpPath := tmp.Name()

	// CreateTemp opens the file owner-only; the rename keeps that mode.
	if err := tmp.Chmod(sitemapMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.NewOutputError(path, err)
	}

	w := NewWriter(tmp, Config{FilePath: path, Pretty: pretty})
	if err := w.WriteSitemap(records); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.NewOutputError(path, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.NewOutputError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.NewOutputError(path, err)
	}
	return nil
}

// OpenStream opens path for streaming records, truncating it.
func OpenStream(path string) (Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.NewOutputError(path, fmt.Errorf("create directory: %w", err))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.NewOutputError(path, err)
	}
	return NewJSONWriter(f, false, true), nil
}
