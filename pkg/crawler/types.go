// Package crawler discovers the reachable pages of a web application by
// driving a headless browser and writes them out as a JSON sitemap.
package crawler

import (
	"context"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/metrics"
	"github.com/PentesterFlow/SiteMapper/internal/state"
	"github.com/PentesterFlow/SiteMapper/internal/visitor"
)

// PageRecord is one sitemap entry.
type PageRecord = state.PageRecord

// Summary counts sitemap records by outcome.
type Summary = state.Summary

// Outcome is what a Visitor reports for one page.
type Outcome = visitor.Outcome

// Visitor visits a single page. The default implementation drives a
// browser pool; tests substitute their own.
type Visitor interface {
	Visit(ctx context.Context, url string, depth int) Outcome
}

// CrawlResult represents the complete result of a crawl session.
type CrawlResult struct {
	Target      string            `json:"target"`
	Origin      string            `json:"origin"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Records     []PageRecord      `json:"records"`
	Summary     Summary           `json:"summary"`
	Complete    bool              `json:"complete"` // false when interrupted
	Pending     int               `json:"pending"`  // worklist items left
	OutputPath  string            `json:"output_path,omitempty"`
	Metrics     *metrics.Snapshot `json:"metrics,omitempty"`
}

// Duration returns how long the crawl ran.
func (r *CrawlResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
