package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
)

// chromedpEngine drives Chrome through a chromedp exec allocator.
type chromedpEngine struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	config        Config
}

func launchChromedp(config Config) (*chromedpEngine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
	)
	for _, arg := range launchArgs(config) {
		name, value := splitArg(arg)
		if value == "" {
			opts = append(opts, chromedp.Flag(name, true))
		} else {
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ViewportWidth > 0 && config.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight))
	}
	if config.BinPath != "" {
		opts = append(opts, chromedp.ExecPath(config.BinPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromedpEngine{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		config:        config,
	}, nil
}

// NewPage opens a new tab in the running browser.
func (e *chromedpEngine) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx)
	p := &chromedpPage{
		ctx:          tabCtx,
		cancel:       cancel,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}

	chromedp.ListenTarget(tabCtx, p.handleEvent)

	actions := []chromedp.Action{
		network.Enable(),
		runtime.Enable(),
	}
	if e.config.ViewportWidth > 0 && e.config.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(
			int64(e.config.ViewportWidth), int64(e.config.ViewportHeight), 1, false))
	}
	if e.config.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(e.config.UserAgent))
	}
	if e.config.IgnoreHTTPSErrors {
		actions = append(actions, security.SetIgnoreCertificateErrors(true))
	}
	if e.config.Stealth {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(StealthScript).Do(ctx)
			return err
		}))
	}

	// The first Run attaches the tab and starts its event loop on the
	// context it is given, so it must be tabCtx itself. ctx only bounds
	// the setup.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx, actions...)
	stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return p, nil
}

// Close stops the browser and its allocator.
func (e *chromedpEngine) Close() error {
	err := chromedp.Cancel(e.browserCtx)
	e.browserCancel()
	e.allocCancel()
	return err
}

// chromedpPage is one chromedp tab. It counts in-flight requests so
// WaitNetworkIdle can tell when the network has gone quiet.
type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	console      func(level, text string)
}

func (p *chromedpPage) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[ev.RequestID] = struct{}{}
		p.lastActivity = time.Now()
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.requestDone(ev.RequestID)
	case *network.EventLoadingFailed:
		p.requestDone(ev.RequestID)
	case *runtime.EventConsoleAPICalled:
		p.mu.Lock()
		fn := p.console
		p.mu.Unlock()
		if fn != nil {
			fn(string(ev.Type), consoleText(ev.Args))
		}
	}
}

func (p *chromedpPage) requestDone(id network.RequestID) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg.Value) == 0 {
			parts = append(parts, arg.Description)
			continue
		}
		var s string
		if err := json.Unmarshal(arg.Value, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, string(arg.Value))
	}
	return strings.Join(parts, " ")
}

// run executes actions on the already attached tab, bounded by ctx.
// Cancelling the derived context stops the actions without closing the
// tab.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) Eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode eval argument: %w", err)
		}
		encoded = append(encoded, string(b))
	}

	// Wrap so undefined comes back as null and promises are awaited.
	expr := fmt.Sprintf("(async () => { const r = await (%s)(%s); return r === undefined ? null : r; })()",
		fn, strings.Join(encoded, ","))

	var raw []byte
	err := p.run(ctx, chromedp.Evaluate(expr, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (p *chromedpPage) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		idle := len(p.inflight) == 0 && time.Since(p.lastActivity) >= quiet
		p.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *chromedpPage) URL(ctx context.Context) string {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return ""
	}
	return loc
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) OnConsole(fn func(level, text string)) {
	p.mu.Lock()
	p.console = fn
	p.mu.Unlock()
}

func (p *chromedpPage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
