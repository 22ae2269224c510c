// Package extract harvests navigable links and page metadata from a
// rendered page. Links come from several sources, are resolved against the
// page location, canonicalized, restricted to the crawl origin and
// deduplicated in first-seen order.
package extract

import (
	"context"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
)

// Stats describes one extraction pass.
type Stats struct {
	Candidates int                `json:"candidates"`
	Accepted   int                `json:"accepted"`
	Rejected   int                `json:"rejected"`
	BySource   map[SourceKind]int `json:"by_source"` // accepted links per source
	Failed     []SourceKind       `json:"failed,omitempty"`
}

// Extractor runs its sources in order over a page.
type Extractor struct {
	Sources    []Source
	Normalizer *Normalizer
	Logger     *logger.Logger
}

// New creates an extractor.
func New(sources []Source, normalizer *Normalizer, log *logger.Logger) *Extractor {
	if normalizer == nil {
		normalizer = NewNormalizer(QueryStrip)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{Sources: sources, Normalizer: normalizer, Logger: log}
}

// Extract returns the canonical same-origin links of page. A failing source
// is logged and skipped; Extract itself never fails.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, baseOrigin string) ([]string, Stats) {
	stats := Stats{BySource: make(map[SourceKind]int)}

	location := page.URL(ctx)
	self, err := e.Normalizer.Canonical(location)
	if err != nil {
		// about:blank or an unreadable location; resolve against the origin.
		location = baseOrigin + "/"
		self = ""
	}

	in := NewInput(page)
	seen := make(map[string]bool)
	var links []string

	for _, src := range e.Sources {
		candidates, err := src.Collect(ctx, in)
		if err != nil {
			stats.Failed = append(stats.Failed, src.Kind())
			log := e.Logger.WithError(err).WithField("source", src.Kind().String())
			if src.Reliable() {
				log.Warn("Link source failed")
			} else {
				log.Debug("Link source failed")
			}
			continue
		}

		for _, c := range candidates {
			stats.Candidates++
			if !usable(c.Raw) {
				stats.Rejected++
				continue
			}
			canonical, err := e.Normalizer.Resolve(location, c.Raw)
			if err != nil || canonical == self || seen[canonical] || !SameOrigin(canonical, baseOrigin) {
				stats.Rejected++
				continue
			}
			seen[canonical] = true
			links = append(links, canonical)
			stats.BySource[c.Kind]++
		}
	}

	stats.Accepted = len(links)
	return links, stats
}
