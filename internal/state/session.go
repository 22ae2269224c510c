// Package state owns the per-crawl bookkeeping: the visited set, the
// sitemap, and checkpoint persistence.
package state

import (
	"encoding/json"
	"time"
)

// Session owns the visited set and sitemap of one crawl. Separate
// sessions share nothing and may run side by side in one process.
type Session struct {
	Target    string
	Origin    string
	StartedAt time.Time

	store   Store
	visited *VisitedSet
	sitemap *Sitemap

	// interrupted is the page whose visit was cut short, if any.
	interrupted string
}

// NewSession creates a session. store may be nil when checkpoints are off.
func NewSession(target, origin string, store Store, estimatedURLs int) *Session {
	return &Session{
		Target:    target,
		Origin:    origin,
		StartedAt: time.Now(),
		store:     store,
		visited:   NewVisitedSet(estimatedURLs),
		sitemap:   NewSitemap(),
	}
}

// MarkVisited inserts url and reports whether the caller won the right to
// visit it.
func (s *Session) MarkVisited(url string) bool {
	return s.visited.Insert(url)
}

// HasVisited checks if a URL has been visited.
func (s *Session) HasVisited(url string) bool {
	return s.visited.Contains(url)
}

// Record appends a page record to the sitemap.
func (s *Session) Record(r PageRecord) {
	s.sitemap.Append(r)
}

// Visited returns the visited set.
func (s *Session) Visited() *VisitedSet {
	return s.visited
}

// Sitemap returns the sitemap.
func (s *Session) Sitemap() *Sitemap {
	return s.sitemap
}

// Interrupted marks url as visited but not finished. Checkpoints list it
// as pending instead of visited so a resumed crawl visits it again.
func (s *Session) Interrupted(url string) {
	s.interrupted = url
}

// Checkpoint snapshots the session together with the unvisited worklist.
// Pending entries for pages that are already visited are dropped; only
// the interrupted page, if any, is carried over in both roles.
func (s *Session) Checkpoint(pending []PendingItem, config json.RawMessage, complete bool) *Checkpoint {
	visited := s.visited.All()
	if s.interrupted != "" {
		kept := visited[:0]
		for _, u := range visited {
			if u != s.interrupted {
				kept = append(kept, u)
			}
		}
		visited = kept
	}

	queued := make([]PendingItem, 0, len(pending))
	for _, p := range pending {
		if p.URL != s.interrupted && s.visited.Contains(p.URL) {
			continue
		}
		queued = append(queued, p)
	}

	return &Checkpoint{
		Target:      s.Target,
		Origin:      s.Origin,
		StartedAt:   s.StartedAt,
		UpdatedAt:   time.Now(),
		Config:      config,
		VisitedURLs: visited,
		Pending:     queued,
		Records:     s.sitemap.Records(),
		Complete:    complete,
	}
}

// Save writes a checkpoint to the store. It is a no-op without a store.
func (s *Session) Save(pending []PendingItem, config json.RawMessage, complete bool) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(s.Checkpoint(pending, config, complete))
}

// Restore loads visited URLs and records from a checkpoint. The pending
// worklist is returned for the caller to re-seed.
func (s *Session) Restore(cp *Checkpoint) []PendingItem {
	if cp == nil {
		return nil
	}
	if !cp.StartedAt.IsZero() {
		s.StartedAt = cp.StartedAt
	}
	s.visited.InsertBatch(cp.VisitedURLs)
	for _, r := range cp.Records {
		s.sitemap.Append(r)
	}
	return cp.Pending
}

// Close closes the underlying store.
func (s *Session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
