package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// rodEngine wraps a Rod browser instance.
type rodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	config   Config
}

func launchRod(config Config) (*rodEngine, error) {
	l := launcher.New().
		Headless(config.Headless).
		NoSandbox(config.NoSandbox)

	if config.BinPath != "" {
		l = l.Bin(config.BinPath)
	}

	for _, arg := range launchArgs(config) {
		name, value := splitArg(arg)
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &rodEngine{
		browser:  browser,
		launcher: l,
		config:   config,
	}, nil
}

// NewPage opens a blank tab with the configured overrides applied.
func (e *rodEngine) NewPage(ctx context.Context) (Page, error) {
	page, err := e.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	// Detach from the creation context; each call gets its own below.
	pageCtx, cancel := context.WithCancel(context.Background())
	page = page.Context(pageCtx)

	if e.config.Stealth {
		if _, err := page.EvalOnNewDocument(StealthScript); err != nil {
			cancel()
			_ = page.Close()
			return nil, fmt.Errorf("failed to install stealth script: %w", err)
		}
	}

	// Set viewport (ignore errors, not critical)
	if e.config.ViewportWidth > 0 && e.config.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  e.config.ViewportWidth,
			Height: e.config.ViewportHeight,
		})
	}

	if e.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: e.config.UserAgent,
		}.Call(page)
	}

	if e.config.IgnoreHTTPSErrors {
		_ = proto.SecuritySetIgnoreCertificateErrors{Ignore: true}.Call(page)
	}

	return &rodPage{page: page, cancel: cancel}, nil
}

// Close shuts down the browser and waits for the process to exit.
func (e *rodEngine) Close() error {
	err := e.browser.Close()
	e.launcher.Cleanup()
	return err
}

// rodPage adapts *rod.Page to Page.
type rodPage struct {
	page   *rod.Page
	cancel context.CancelFunc
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) Eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error {
	res, err := p.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeValue(res.Value, out)
}

// decodeValue copies a gson value into out through its JSON encoding.
func decodeValue(v gson.JSON, out interface{}) error {
	if v.Nil() {
		return nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *rodPage) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	wait := p.page.Context(ctx).WaitRequestIdle(quiet, nil, nil, nil)
	wait()
	return ctx.Err()
}

func (p *rodPage) URL(ctx context.Context) string {
	info, err := p.page.Context(ctx).Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) OnConsole(fn func(level, text string)) {
	go p.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			if arg.Value.Nil() {
				parts = append(parts, arg.Description)
				continue
			}
			parts = append(parts, arg.Value.String())
		}
		fn(string(e.Type), strings.Join(parts, " "))
	})()
}

func (p *rodPage) Close() error {
	defer p.cancel()
	return p.page.Close()
}
