package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// VisitedSet holds the canonical URLs a crawl has committed to visit.
// A bloom filter answers most negative lookups; the exact map settles
// false positives. Insertion order is kept for checkpoints.
type VisitedSet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	order  []string
}

// NewVisitedSet creates a visited set sized for estimatedItems URLs.
func NewVisitedSet(estimatedItems int) *VisitedSet {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &VisitedSet{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Insert adds url and reports whether it was new. The check and the
// insert happen under one lock so concurrent callers cannot both win.
func (v *VisitedSet) Insert(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.filter.TestString(url) {
		if _, exists := v.exact[url]; exists {
			return false
		}
	}

	v.filter.AddString(url)
	v.exact[url] = struct{}{}
	v.order = append(v.order, url)
	return true
}

// Contains checks if a URL has been inserted.
func (v *VisitedSet) Contains(url string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.filter.TestString(url) {
		return false
	}
	_, exists := v.exact[url]
	return exists
}

// Len returns the number of unique URLs inserted.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.exact)
}

// All returns the URLs in insertion order.
func (v *VisitedSet) All() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	urls := make([]string, len(v.order))
	copy(urls, v.order)
	return urls
}

// InsertBatch adds multiple URLs at once, skipping ones already present.
func (v *VisitedSet) InsertBatch(urls []string) {
	for _, url := range urls {
		v.Insert(url)
	}
}
