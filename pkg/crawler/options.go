package crawler

import (
	"io"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/extract"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
	"github.com/PentesterFlow/SiteMapper/internal/metrics"
	"github.com/PentesterFlow/SiteMapper/internal/progress"
	"github.com/PentesterFlow/SiteMapper/internal/queue"
	"github.com/PentesterFlow/SiteMapper/internal/shutdown"
	"github.com/PentesterFlow/SiteMapper/internal/state"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		c.config = config.Clone()
		return nil
	}
}

// WithMode switches to the preset of mode, keeping the target.
func WithMode(mode Mode) Option {
	return func(c *Crawler) error {
		preset, err := ConfigForMode(mode)
		if err != nil {
			return err
		}
		preset.Target = c.config.Target
		c.config = preset
		return nil
	}
}

// WithTarget sets the target URL to crawl.
func WithTarget(url string) Option {
	return func(c *Crawler) error {
		c.config.Target = url
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) error {
		if depth < 0 {
			depth = 0
		}
		c.config.MaxDepth = depth
		return nil
	}
}

// WithMaxChildren caps the links followed per page. 0 is unlimited.
func WithMaxChildren(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			n = 0
		}
		c.config.MaxChildren = n
		return nil
	}
}

// WithQueryPolicy sets whether query strings survive canonicalization.
func WithQueryPolicy(policy extract.QueryPolicy) Option {
	return func(c *Crawler) error {
		c.config.QueryPolicy = policy
		return nil
	}
}

// WithOrder sets the traversal order.
func WithOrder(order queue.Order) Option {
	return func(c *Crawler) error {
		c.config.Order = order
		return nil
	}
}

// WithNavigationTimeout sets the per-page navigation timeout.
func WithNavigationTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Timeouts.Navigation = timeout
		return nil
	}
}

// WithInteraction toggles the post-readiness interaction script.
func WithInteraction(enabled bool) Option {
	return func(c *Crawler) error {
		c.config.Interaction.Enabled = enabled
		return nil
	}
}

// WithReadinessStrategies sets the readiness strategy chain.
func WithReadinessStrategies(names ...string) Option {
	return func(c *Crawler) error {
		c.config.Readiness.Strategies = append([]string(nil), names...)
		return nil
	}
}

// WithExcludePatterns adds URL regexes to exclude.
func WithExcludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.Scope.ExcludePatterns = append(c.config.Scope.ExcludePatterns, patterns...)
		return nil
	}
}

// WithExcludeGlobs adds path globs to exclude.
func WithExcludeGlobs(globs ...string) Option {
	return func(c *Crawler) error {
		c.config.Scope.ExcludeGlobs = append(c.config.Scope.ExcludeGlobs, globs...)
		return nil
	}
}

// WithEngine selects the browser engine.
func WithEngine(engine string) Option {
	return func(c *Crawler) error {
		c.config.Browser.Engine = engine
		return nil
	}
}

// WithHeadless sets headless browser mode.
func WithHeadless(headless bool) Option {
	return func(c *Crawler) error {
		c.config.Browser.Headless = headless
		return nil
	}
}

// WithUserAgent sets the browser user agent.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) error {
		c.config.Browser.UserAgent = ua
		return nil
	}
}

// WithOutputFile sets the sitemap path.
func WithOutputFile(path string) Option {
	return func(c *Crawler) error {
		c.config.Output.FilePath = path
		return nil
	}
}

// WithPrettyOutput enables/disables indented JSON.
func WithPrettyOutput(pretty bool) Option {
	return func(c *Crawler) error {
		c.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreamFile writes every record as a JSON line while crawling.
func WithStreamFile(path string) Option {
	return func(c *Crawler) error {
		c.config.Output.StreamPath = path
		return nil
	}
}

// WithStateFile enables checkpoints at path.
func WithStateFile(path string) Option {
	return func(c *Crawler) error {
		c.config.State.Enabled = path != ""
		c.config.State.FilePath = path
		return nil
	}
}

// WithAutoSave configures periodic checkpoints.
func WithAutoSave(enabled bool, intervalSeconds int) Option {
	return func(c *Crawler) error {
		c.config.State.AutoSave = enabled
		c.config.State.Interval = intervalSeconds
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		c.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(c *Crawler) error {
		c.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithProgress prints crawl lines and the summary to w.
func WithProgress(w io.Writer) Option {
	return func(c *Crawler) error {
		c.progress = progress.New(w)
		return nil
	}
}

// WithShutdown hands resource cleanup to h. The crawler registers its
// browser pool and state store instead of closing them itself.
func WithShutdown(h *shutdown.Handler) Option {
	return func(c *Crawler) error {
		c.shutdown = h
		return nil
	}
}

// WithVisitor replaces the browser-backed visitor.
func WithVisitor(v Visitor) Option {
	return func(c *Crawler) error {
		c.visitor = v
		return nil
	}
}

// WithEngineFactory replaces how browser engines are started.
func WithEngineFactory(f browser.Factory) Option {
	return func(c *Crawler) error {
		c.engineFactory = f
		return nil
	}
}

// WithStore sets the checkpoint store.
func WithStore(s state.Store) Option {
	return func(c *Crawler) error {
		c.store = s
		return nil
	}
}
