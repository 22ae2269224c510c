package readiness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/framework"
)

// Strategy names.
const (
	FrameworkSignal = "framework-signal"
	AppRoot         = "app-root"
	NavAndContent   = "nav-and-content"
	AnchorStable    = "anchor-stability"
)

// Strategy is one readiness heuristic. IsReady is polled until it
// reports true or its step times out.
type Strategy interface {
	Name() string
	IsReady(ctx context.Context, page browser.Page) (bool, error)
}

// Resetter is implemented by strategies that keep state between polls.
// The detector resets them before every await.
type Resetter interface {
	Reset()
}

const appRootScript = `() => {
	const roots = ['[data-reactroot]', '[data-react-helmet]', '.App', '#root', '#app', 'main', '[role="main"]'];
	return roots.some(sel => {
		const el = document.querySelector(sel);
		return !!el && el.children.length > 0;
	});
}`

const navAndContentScript = `() => {
	const nav = document.querySelectorAll('nav, .nav, .navigation, .menu, header, .header');
	const content = document.querySelectorAll('main, .main, .content, article, section');
	return nav.length > 0 && content.length > 0;
}`

const anchorCountScript = `() => document.querySelectorAll('a[href]').length`

// Predicate is ready when its script returns true.
type Predicate struct {
	name   string
	script string
}

// NewPredicate creates a strategy from a boolean JavaScript function.
func NewPredicate(name, script string) *Predicate {
	return &Predicate{name: name, script: script}
}

func (p *Predicate) Name() string { return p.name }

func (p *Predicate) IsReady(ctx context.Context, page browser.Page) (bool, error) {
	var ok bool
	if err := page.Eval(ctx, p.script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Framework is ready once a known framework has booted or the document
// has finished loading.
type Framework struct {
	detector *framework.Detector

	mu   sync.Mutex
	last *framework.DetectionResult
}

// NewFramework creates the framework-signal strategy.
func NewFramework(detector *framework.Detector) *Framework {
	if detector == nil {
		detector = framework.NewDetector()
	}
	return &Framework{detector: detector}
}

func (f *Framework) Name() string { return FrameworkSignal }

func (f *Framework) IsReady(ctx context.Context, page browser.Page) (bool, error) {
	result, err := f.detector.Detect(ctx, page)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	f.last = result
	f.mu.Unlock()
	return result.IsSPA || result.DocumentComplete, nil
}

// Last returns the most recent detection, or nil.
func (f *Framework) Last() *framework.DetectionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *Framework) Reset() {
	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()
}

// AnchorStability is ready when the number of a[href] elements has not
// changed across Required consecutive samples. The count starts at zero,
// so an empty page settles after Required samples.
type AnchorStability struct {
	Required int
	// IdleWait bounds a network-idle wait taken before each sample.
	IdleWait time.Duration

	mu     sync.Mutex
	last   int
	stable int
}

// NewAnchorStability creates the anchor-stability strategy.
func NewAnchorStability(required int, idleWait time.Duration) *AnchorStability {
	if required < 1 {
		required = 3
	}
	return &AnchorStability{Required: required, IdleWait: idleWait}
}

func (a *AnchorStability) Name() string { return AnchorStable }

func (a *AnchorStability) IsReady(ctx context.Context, page browser.Page) (bool, error) {
	if a.IdleWait > 0 {
		idleCtx, cancel := context.WithTimeout(ctx, a.IdleWait)
		_ = page.WaitNetworkIdle(idleCtx, defaultQuiet)
		cancel()
	}

	var count int
	if err := page.Eval(ctx, anchorCountScript, &count); err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if count == a.last {
		a.stable++
	} else {
		a.stable = 0
		a.last = count
	}
	return a.stable >= a.Required, nil
}

func (a *AnchorStability) Reset() {
	a.mu.Lock()
	a.last = 0
	a.stable = 0
	a.mu.Unlock()
}

// New returns the built-in strategy with the given name.
func New(name string, t Timing) (Strategy, error) {
	switch name {
	case FrameworkSignal:
		return NewFramework(nil), nil
	case AppRoot:
		return NewPredicate(AppRoot, appRootScript), nil
	case NavAndContent:
		return NewPredicate(NavAndContent, navAndContentScript), nil
	case AnchorStable:
		return NewAnchorStability(t.StableSamples, t.SampleIdle), nil
	default:
		return nil, fmt.Errorf("unknown readiness strategy %q", name)
	}
}
