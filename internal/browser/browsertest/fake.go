// Package browsertest provides scripted in-memory browser pages for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
)

// EvalFunc produces the result of a scripted evaluation.
type EvalFunc func(args ...interface{}) (interface{}, error)

type handler struct {
	match string
	fn    EvalFunc
}

// FakePage is a browser.Page whose evaluations are answered by handlers
// matched on a substring of the evaluated script. Handlers are tried in
// registration order. Unmatched scripts succeed and leave out untouched.
type FakePage struct {
	mu sync.Mutex

	// NavigateFunc, when set, decides the outcome of Navigate.
	NavigateFunc func(url string) error
	// IdleErr is returned by WaitNetworkIdle.
	IdleErr error
	// Content is returned by HTML.
	Content string
	// HTMLErr is returned by HTML when set.
	HTMLErr error
	// Panic, when set, is raised by the first Eval whose script contains it.
	Panic string
	// Block, when set, makes every Eval whose script contains it wait
	// until its context is done, like a page that stopped answering.
	Block string

	current     string
	handlers    []handler
	evals       []string
	navigations []string
	console     func(level, text string)
	closed      bool
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage returns an empty page at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{current: "about:blank"}
}

// Handle registers fn for scripts containing match.
func (p *FakePage) Handle(match string, fn EvalFunc) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler{match: match, fn: fn})
	return p
}

// Return registers a constant result for scripts containing match.
func (p *FakePage) Return(match string, v interface{}) *FakePage {
	return p.Handle(match, func(...interface{}) (interface{}, error) { return v, nil })
}

// Fail registers an error for scripts containing match.
func (p *FakePage) Fail(match string, err error) *FakePage {
	return p.Handle(match, func(...interface{}) (interface{}, error) { return nil, err })
}

// SetURL moves the page without recording a navigation.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	p.current = url
	p.mu.Unlock()
}

// Emit delivers a console message to the registered listener.
func (p *FakePage) Emit(level, text string) {
	p.mu.Lock()
	fn := p.console
	p.mu.Unlock()
	if fn != nil {
		fn(level, text)
	}
}

// Evals returns every evaluated script in order.
func (p *FakePage) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// EvalCount returns how many evaluated scripts contained match.
func (p *FakePage) EvalCount(match string) int {
	n := 0
	for _, js := range p.Evals() {
		if strings.Contains(js, match) {
			n++
		}
	}
	return n
}

// Navigations returns every URL passed to Navigate.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	fn := p.NavigateFunc
	p.mu.Unlock()

	if fn != nil {
		if err := fn(url); err != nil {
			return err
		}
	}
	p.SetURL(url)
	return nil
}

func (p *FakePage) Eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.evals = append(p.evals, fn)
	panicOn := p.Panic
	blockOn := p.Block
	handlers := append([]handler(nil), p.handlers...)
	p.mu.Unlock()

	if panicOn != "" && strings.Contains(fn, panicOn) {
		panic("browsertest: scripted panic")
	}
	if blockOn != "" && strings.Contains(fn, blockOn) {
		<-ctx.Done()
		return ctx.Err()
	}

	for _, h := range handlers {
		if !strings.Contains(fn, h.match) {
			continue
		}
		v, err := h.fn(args...)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return nil
}

func (p *FakePage) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.IdleErr
}

func (p *FakePage) URL(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	return p.Content, nil
}

func (p *FakePage) OnConsole(fn func(level, text string)) {
	p.mu.Lock()
	p.console = fn
	p.mu.Unlock()
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("browsertest: page already closed")
	}
	p.closed = true
	return nil
}

// FakeEngine hands out FakePages.
type FakeEngine struct {
	mu sync.Mutex

	// PageFunc builds each new page. NewFakePage is used when nil.
	PageFunc func() (*FakePage, error)

	pages  []*FakePage
	closed bool
}

var _ browser.Engine = (*FakeEngine)(nil)

func (e *FakeEngine) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	build := e.PageFunc
	if build == nil {
		build = func() (*FakePage, error) { return NewFakePage(), nil }
	}
	page, err := build()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.pages = append(e.pages, page)
	e.mu.Unlock()
	return page, nil
}

// Pages returns every page handed out.
func (e *FakeEngine) Pages() []*FakePage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakePage(nil), e.pages...)
}

func (e *FakeEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// IsClosed reports whether Close was called.
func (e *FakeEngine) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
