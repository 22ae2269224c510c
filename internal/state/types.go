package state

import (
	"bytes"
	"encoding/json"
	"time"
)

// ErrorTitle is the title carried by every error record.
const ErrorTitle = "Error loading page"

// PageRecord is one sitemap entry. Exactly one is appended per visited URL,
// either as a success record or as an error record.
type PageRecord struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Depth       int     `json:"depth"`
	HasContent  bool    `json:"hasContent"`
	Failed      bool    `json:"error,omitempty"`
	Timestamp   float64 `json:"timestamp"`
}

// errorRecord is the wire shape of a failed visit: no hasContent field.
type errorRecord struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Depth       int     `json:"depth"`
	Failed      bool    `json:"error"`
	Timestamp   float64 `json:"timestamp"`
}

// MarshalJSON emits hasContent only on success records and error only on
// error records.
func (r PageRecord) MarshalJSON() ([]byte, error) {
	if r.Failed {
		return marshalNoEscape(errorRecord{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			Depth:       r.Depth,
			Failed:      true,
			Timestamp:   r.Timestamp,
		})
	}
	type successRecord PageRecord
	return marshalNoEscape(successRecord(r))
}

// marshalNoEscape encodes v leaving <, > and & as they are.
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// NewSuccessRecord builds the record for a page that loaded.
func NewSuccessRecord(url string, depth int, title, description string, hasContent bool) PageRecord {
	return PageRecord{
		URL:         url,
		Title:       title,
		Description: description,
		Depth:       depth,
		HasContent:  hasContent,
		Timestamp:   EpochSeconds(time.Now()),
	}
}

// NewErrorRecord builds the record for a page whose visit failed.
func NewErrorRecord(url string, depth int, err error) PageRecord {
	description := "unknown error"
	if err != nil {
		description = err.Error()
	}
	return PageRecord{
		URL:         url,
		Title:       ErrorTitle,
		Description: description,
		Depth:       depth,
		Failed:      true,
		Timestamp:   EpochSeconds(time.Now()),
	}
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Summary splits the sitemap for reporting.
type Summary struct {
	Total       int `json:"total"`
	Successful  int `json:"successful"`
	Errors      int `json:"errors"`
	WithContent int `json:"with_content"`
}

// PendingItem is a worklist entry that has not been visited yet.
type PendingItem struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Checkpoint is a resumable snapshot of a crawl session.
type Checkpoint struct {
	Target      string          `json:"target"`
	Origin      string          `json:"origin"`
	StartedAt   time.Time       `json:"started_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Config      json.RawMessage `json:"config,omitempty"`
	VisitedURLs []string        `json:"visited_urls"`
	Pending     []PendingItem   `json:"pending"`
	Records     []PageRecord    `json:"records"`
	Complete    bool            `json:"complete"`
}

// Summary computes the record split stored in the checkpoint.
func (c *Checkpoint) Summary() Summary {
	return summarize(c.Records)
}
