// Package browser provides the headless Chrome capability the crawler drives.
// Two engines are available: go-rod (default) and chromedp.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine names.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// StealthScript hides the automation marker from page scripts. It runs
// before any document script on every navigation.
const StealthScript = `delete Object.getPrototypeOf(navigator).webdriver;`

// DefaultUserAgent mimics a desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultLaunchArgs are passed to Chrome on every launch. Entries use the
// "name" or "name=value" form without leading dashes.
var DefaultLaunchArgs = []string{
	"disable-blink-features=AutomationControlled",
	"disable-dev-shm-usage",
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-extensions",
	"disable-gpu",
}

// Config defines browser configuration.
type Config struct {
	Engine            string        `json:"engine" yaml:"engine"`
	Headless          bool          `json:"headless" yaml:"headless"`
	NoSandbox         bool          `json:"no_sandbox" yaml:"no_sandbox"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	LaunchArgs        []string      `json:"launch_args" yaml:"launch_args"`
	Stealth           bool          `json:"stealth" yaml:"stealth"`
	RecycleAfter      int           `json:"recycle_after" yaml:"recycle_after"` // 0 never recycles
	BinPath           string        `json:"bin_path" yaml:"bin_path"`
	PoolSize          int           `json:"pool_size" yaml:"pool_size"`
	LaunchRetries     int           `json:"launch_retries" yaml:"launch_retries"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Engine:            EngineRod,
		Headless:          true,
		NoSandbox:         true,
		UserAgent:         DefaultUserAgent,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		LaunchArgs:        append([]string(nil), DefaultLaunchArgs...),
		Stealth:           true,
		RecycleAfter:      100,
		PoolSize:          1,
		LaunchRetries:     2,
	}
}

// Engine is a running browser that hands out pages.
type Engine interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single browser tab.
//
// Eval takes a JavaScript function expression ("() => ..." or
// "(a, b) => ..."), calls it with args, awaits a returned promise and
// JSON-decodes the result into out. A nil out discards the result.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error
	URL(ctx context.Context) string
	HTML(ctx context.Context) (string, error)
	OnConsole(fn func(level, text string))
	Close() error
}

// Launch starts the engine named in cfg.Engine.
func Launch(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineRod:
		return launchRod(cfg)
	case EngineChromedp:
		return launchChromedp(cfg)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
	}
}

// launchArgs returns the configured args with IgnoreHTTPSErrors folded in.
func launchArgs(cfg Config) []string {
	args := cfg.LaunchArgs
	if args == nil {
		args = DefaultLaunchArgs
	}
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		a = strings.TrimLeft(strings.TrimSpace(a), "-")
		if a != "" {
			out = append(out, a)
		}
	}
	if cfg.IgnoreHTTPSErrors {
		out = append(out, "ignore-certificate-errors")
	}
	return out
}

// splitArg splits "name=value" into its parts.
func splitArg(arg string) (name, value string) {
	if i := strings.IndexByte(arg, '='); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}
