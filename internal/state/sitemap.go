package state

import "sync"

// Sitemap is the append-only, ordered collection of page records.
// It does no deduplication; the visited set guarantees one record per URL.
type Sitemap struct {
	mu      sync.RWMutex
	records []PageRecord
}

// NewSitemap creates an empty sitemap.
func NewSitemap() *Sitemap {
	return &Sitemap{records: make([]PageRecord, 0)}
}

// Append adds a record at the end.
func (s *Sitemap) Append(record PageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// Records returns a copy of the records in append order.
func (s *Sitemap) Records() []PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PageRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Sitemap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Summary returns success/error/content counts.
func (s *Sitemap) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.records)
}

func summarize(records []PageRecord) Summary {
	sum := Summary{Total: len(records)}
	for _, r := range records {
		if r.Failed {
			sum.Errors++
			continue
		}
		sum.Successful++
		if r.HasContent {
			sum.WithContent++
		}
	}
	return sum
}
