package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Factory starts a new engine. The pool calls it on creation and when an
// engine is recycled.
type Factory func() (Engine, error)

// LaunchFactory returns a Factory that launches engines from cfg.
func LaunchFactory(cfg Config) Factory {
	return func() (Engine, error) {
		return Launch(cfg)
	}
}

type pooledEngine struct {
	engine Engine
	pages  int // pages opened since launch
	active int // pages currently leased
}

// Pool leases pages from a fixed set of engines.
type Pool struct {
	mu           sync.Mutex
	engines      []*pooledEngine
	leases       map[Page]*pooledEngine
	factory      Factory
	recycleAfter int
	size         int
	current      int
	totalPages   int
	recycled     int
	closed       bool
	sem          chan struct{}
}

// NewPool creates a new page pool, starting config.PoolSize engines.
func NewPool(factory Factory, config Config) (*Pool, error) {
	if config.PoolSize < 1 {
		config.PoolSize = 1
	}

	pool := &Pool{
		engines:      make([]*pooledEngine, config.PoolSize),
		leases:       make(map[Page]*pooledEngine),
		factory:      factory,
		recycleAfter: config.RecycleAfter,
		size:         config.PoolSize,
		sem:          make(chan struct{}, config.PoolSize),
	}

	// Initialize semaphore
	for i := 0; i < config.PoolSize; i++ {
		pool.sem <- struct{}{}
	}

	// Pre-create engines
	for i := 0; i < config.PoolSize; i++ {
		engine, err := factory()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create browser %d: %w", i, err)
		}
		pool.engines[i] = &pooledEngine{engine: engine}
	}

	return pool, nil
}

// Acquire opens a page on the next engine. The page must be handed back
// with Release.
func (p *Pool) Acquire(ctx context.Context) (Page, error) {
	// Wait for available slot
	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem <- struct{}{} // Return token
		return nil, ErrPoolClosed
	}

	pe := p.engines[p.current]
	p.current = (p.current + 1) % p.size

	// Recycle only when no other lease is using the engine.
	if p.recycleAfter > 0 && pe.pages >= p.recycleAfter && pe.active == 0 {
		_ = pe.engine.Close()
		engine, err := p.factory()
		if err != nil {
			p.mu.Unlock()
			p.sem <- struct{}{}
			return nil, fmt.Errorf("failed to recycle browser: %w", err)
		}
		pe.engine = engine
		pe.pages = 0
		p.recycled++
	}

	pe.pages++
	pe.active++
	p.totalPages++
	engine := pe.engine
	p.mu.Unlock()

	page, err := engine.NewPage(ctx)
	if err != nil {
		p.mu.Lock()
		pe.active--
		p.mu.Unlock()
		p.sem <- struct{}{}
		return nil, err
	}

	p.mu.Lock()
	p.leases[page] = pe
	p.mu.Unlock()

	return page, nil
}

// Release closes the page and returns its slot to the pool.
func (p *Pool) Release(page Page) error {
	if page == nil {
		return nil
	}

	p.mu.Lock()
	pe, ok := p.leases[page]
	if ok {
		delete(p.leases, page)
		pe.active--
	}
	p.mu.Unlock()

	err := page.Close()
	if ok {
		p.sem <- struct{}{}
	}
	return err
}

// Close closes all engines in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	var lastErr error
	for _, pe := range p.engines {
		if pe != nil && pe.engine != nil {
			if err := pe.engine.Close(); err != nil {
				lastErr = err
			}
		}
	}

	return lastErr
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.size
}

// PoolStats describes pool usage.
type PoolStats struct {
	Size       int `json:"size"`
	Available  int `json:"available"`
	TotalPages int `json:"total_pages"`
	Recycled   int `json:"recycled"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Size:       p.size,
		Available:  len(p.sem),
		TotalPages: p.totalPages,
		Recycled:   p.recycled,
	}
}
