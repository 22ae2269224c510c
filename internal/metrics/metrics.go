// Package metrics collects crawl counters.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// visitBounds are the upper bounds of the visit duration histogram. A
// final bucket takes everything slower.
var visitBounds = []time.Duration{
	time.Second,
	2500 * time.Millisecond,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Collector collects and aggregates metrics.
type Collector struct {
	// Counters
	pagesVisited        atomic.Int64
	pagesFailed         atomic.Int64
	pagesSkipped        atomic.Int64
	navigationFallbacks atomic.Int64
	readinessTimeouts   atomic.Int64
	interactionFailures atomic.Int64
	linksDiscovered     atomic.Int64

	// Visit time tracking
	visitTimesSum atomic.Int64
	visitTimesNum atomic.Int64

	// Gauges
	worklistDepth atomic.Int64

	visitBuckets [8]atomic.Int64

	// Labelled counters
	errorCounts    map[string]*atomic.Int64
	readinessHits  map[string]*atomic.Int64
	linksPerSource map[string]*atomic.Int64
	labelMu        sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts:    make(map[string]*atomic.Int64),
		readinessHits:  make(map[string]*atomic.Int64),
		linksPerSource: make(map[string]*atomic.Int64),
		startTime:      time.Now(),
	}
}

func (c *Collector) incLabel(m map[string]*atomic.Int64, label string, n int64) {
	c.labelMu.RLock()
	counter := m[label]
	c.labelMu.RUnlock()

	if counter == nil {
		c.labelMu.Lock()
		if counter = m[label]; counter == nil {
			counter = &atomic.Int64{}
			m[label] = counter
		}
		c.labelMu.Unlock()
	}
	counter.Add(n)
}

// RecordVisit records a finished visit. errorType is empty on success.
func (c *Collector) RecordVisit(d time.Duration, errorType string) {
	c.pagesVisited.Add(1)
	if errorType != "" {
		c.pagesFailed.Add(1)
		c.incLabel(c.errorCounts, errorType, 1)
	}

	c.visitTimesSum.Add(d.Milliseconds())
	c.visitTimesNum.Add(1)
	c.visitBuckets[bucket(d)].Add(1)
}

func bucket(d time.Duration) int {
	for i, bound := range visitBounds {
		if d < bound {
			return i
		}
	}
	return len(visitBounds)
}

// RecordSkip counts a worklist item dropped before visiting.
func (c *Collector) RecordSkip() {
	c.pagesSkipped.Add(1)
}

// RecordNavigationFallback counts a visit rescued by the click fallback.
func (c *Collector) RecordNavigationFallback() {
	c.navigationFallbacks.Add(1)
}

// RecordReadiness records which strategy settled a page.
func (c *Collector) RecordReadiness(strategy string, timedOut bool) {
	if timedOut {
		c.readinessTimeouts.Add(1)
		return
	}
	if strategy != "" {
		c.incLabel(c.readinessHits, strategy, 1)
	}
}

// RecordInteractionFailure counts a swallowed interaction error.
func (c *Collector) RecordInteractionFailure() {
	c.interactionFailures.Add(1)
}

// RecordLinks records accepted links for a source.
func (c *Collector) RecordLinks(source string, n int) {
	if n <= 0 {
		return
	}
	c.linksDiscovered.Add(int64(n))
	c.incLabel(c.linksPerSource, source, int64(n))
}

// SetWorklistDepth sets the current worklist length.
func (c *Collector) SetWorklistDepth(n int) {
	c.worklistDepth.Store(int64(n))
}

// GetAverageVisitTime returns the average visit time.
func (c *Collector) GetAverageVisitTime() time.Duration {
	sum := c.visitTimesSum.Load()
	num := c.visitTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		PagesVisited:        c.pagesVisited.Load(),
		PagesFailed:         c.pagesFailed.Load(),
		PagesSkipped:        c.pagesSkipped.Load(),
		NavigationFallbacks: c.navigationFallbacks.Load(),
		ReadinessTimeouts:   c.readinessTimeouts.Load(),
		InteractionFailures: c.interactionFailures.Load(),
		LinksDiscovered:     c.linksDiscovered.Load(),
		WorklistDepth:       c.worklistDepth.Load(),
		AverageVisitTime:    c.GetAverageVisitTime(),
		ErrorCounts:         make(map[string]int64),
		ReadinessHits:       make(map[string]int64),
		LinksPerSource:      make(map[string]int64),
		VisitTimeHist:       make([]int64, len(c.visitBuckets)),
	}

	c.labelMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	for k, v := range c.readinessHits {
		s.ReadinessHits[k] = v.Load()
	}
	for k, v := range c.linksPerSource {
		s.LinksPerSource[k] = v.Load()
	}
	c.labelMu.RUnlock()

	for i := range c.visitBuckets {
		s.VisitTimeHist[i] = c.visitBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	PagesVisited        int64            `json:"pages_visited"`
	PagesFailed         int64            `json:"pages_failed"`
	PagesSkipped        int64            `json:"pages_skipped"`
	NavigationFallbacks int64            `json:"navigation_fallbacks"`
	ReadinessTimeouts   int64            `json:"readiness_timeouts"`
	InteractionFailures int64            `json:"interaction_failures"`
	LinksDiscovered     int64            `json:"links_discovered"`
	WorklistDepth       int64            `json:"worklist_depth"`
	AverageVisitTime    time.Duration    `json:"average_visit_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	ReadinessHits       map[string]int64 `json:"readiness_hits"`
	LinksPerSource      map[string]int64 `json:"links_per_source"`
	VisitTimeHist       []int64          `json:"visit_time_histogram"`
}

// ErrorRate returns failed visits over all visits.
func (s *Snapshot) ErrorRate() float64 {
	if s.PagesVisited == 0 {
		return 0
	}
	return float64(s.PagesFailed) / float64(s.PagesVisited)
}

// Summary returns a flat map for structured logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"pages_visited":        s.PagesVisited,
		"pages_failed":         s.PagesFailed,
		"pages_skipped":        s.PagesSkipped,
		"error_rate":           s.ErrorRate(),
		"navigation_fallbacks": s.NavigationFallbacks,
		"readiness_timeouts":   s.ReadinessTimeouts,
		"readiness_hits":       s.ReadinessHits,
		"interaction_failures": s.InteractionFailures,
		"links_discovered":     s.LinksDiscovered,
		"links_per_source":     s.LinksPerSource,
		"avg_visit_time_ms":    s.AverageVisitTime.Milliseconds(),
	}
}
