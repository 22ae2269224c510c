package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	errs "github.com/PentesterFlow/SiteMapper/internal/errors"
	"github.com/PentesterFlow/SiteMapper/internal/extract"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
	"github.com/PentesterFlow/SiteMapper/internal/metrics"
	"github.com/PentesterFlow/SiteMapper/internal/output"
	"github.com/PentesterFlow/SiteMapper/internal/progress"
	"github.com/PentesterFlow/SiteMapper/internal/queue"
	"github.com/PentesterFlow/SiteMapper/internal/readiness"
	"github.com/PentesterFlow/SiteMapper/internal/scope"
	"github.com/PentesterFlow/SiteMapper/internal/shutdown"
	"github.com/PentesterFlow/SiteMapper/internal/state"
	"github.com/PentesterFlow/SiteMapper/internal/visitor"
)

// estimatedURLs sizes the visited-set bloom filter.
const estimatedURLs = 10000

// Crawler is the main crawler orchestrator. A Crawler runs one crawl;
// separate Crawlers share nothing.
type Crawler struct {
	config        *Config
	logger        *logger.Logger
	metrics       *metrics.Collector
	progress      *progress.Reporter
	shutdown      *shutdown.Handler
	visitor       Visitor
	engineFactory browser.Factory
	store         state.Store
	checkpoint    *state.Checkpoint // set when resuming

	running atomic.Bool
}

// New creates a new crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		c.logger = logger.ForFlags(c.config.Verbose, c.config.Debug, "crawler")
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.progress == nil {
		c.progress = progress.New(nil)
	}

	return c, nil
}

// Resume creates a crawler that continues the crawl checkpointed in
// statePath. The checkpointed configuration is restored first; opts are
// applied on top of it.
func Resume(statePath string, opts ...Option) (*Crawler, error) {
	cp, err := LoadCheckpoint(statePath)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint found in %s", statePath)
	}
	if cp.Complete {
		return nil, fmt.Errorf("crawl of %s already completed", cp.Target)
	}

	config, err := ConfigForMode(ModeSPA)
	if err != nil {
		return nil, err
	}
	if len(cp.Config) > 0 {
		if err := json.Unmarshal(cp.Config, config); err != nil {
			return nil, fmt.Errorf("failed to decode checkpointed config: %w", err)
		}
	}
	if config.Target == "" {
		config.Target = cp.Target
	}
	config.State.Enabled = true
	config.State.FilePath = statePath

	all := append([]Option{WithConfig(config)}, opts...)
	c, err := New(all...)
	if err != nil {
		return nil, err
	}
	c.checkpoint = cp
	return c, nil
}

// LoadCheckpoint reads the checkpoint stored at path. It returns nil when
// the store holds none.
func LoadCheckpoint(path string) (*state.Checkpoint, error) {
	store, err := state.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Load()
}

// Config returns a copy of the crawler configuration.
func (c *Crawler) Config() *Config {
	return c.config.Clone()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// IsRunning reports whether Start is in progress.
func (c *Crawler) IsRunning() bool {
	return c.running.Load()
}

// crawlRun is the state of one Start call.
type crawlRun struct {
	origin     string
	start      string
	scope      *scope.Checker
	session    *state.Session
	worklist   queue.Worklist
	stream     output.Writer
	configJSON json.RawMessage
	lastSave   time.Time
}

// Start runs the crawl until the worklist is empty or ctx is cancelled.
// Interruption is not an error: the result has Complete set to false and
// the sitemap gathered so far is still written.
func (c *Crawler) Start(ctx context.Context) (*CrawlResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("crawler is already running")
	}
	defer c.running.Store(false)

	run, err := c.prepare()
	if err != nil {
		return nil, err
	}
	defer run.worklist.Close()

	v, cleanup, err := c.buildVisitor(run.origin)
	if err != nil {
		run.session.Close()
		return nil, err
	}

	if c.shutdown != nil {
		c.shutdown.Register("browser-pool", func(context.Context) error { return cleanup() })
		c.shutdown.Register("state-store", func(context.Context) error { return run.session.Close() })
	} else {
		defer run.session.Close()
		defer cleanup()
	}

	if path := c.config.Output.StreamPath; path != "" {
		stream, err := output.OpenStream(path)
		if err != nil {
			return nil, err
		}
		run.stream = stream
		defer stream.Close()
	}

	c.progress.Start(c.config.Target, run.origin, string(c.config.Mode), c.config.MaxDepth)
	c.logger.WithField("origin", run.origin).
		WithField("mode", c.config.Mode).
		Infof("Starting crawl of %s", run.start)

	complete := c.loop(ctx, run, v)

	return c.finish(run, complete)
}

// prepare resolves the origin, builds the scope checker and session, and
// seeds the worklist from the target or the resumed checkpoint.
func (c *Crawler) prepare() (*crawlRun, error) {
	origin, err := scope.Origin(c.config.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	normalizer := extract.NewNormalizer(c.config.QueryPolicy)
	start, err := normalizer.Canonical(c.config.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	checker, err := scope.NewChecker(c.config.Target, c.config.scopeRules())
	if err != nil {
		return nil, fmt.Errorf("failed to create scope checker: %w", err)
	}

	store := c.store
	if store == nil && c.config.State.Enabled {
		store, err = state.OpenStore(c.config.State.FilePath)
		if err != nil {
			return nil, err
		}
	}

	wl, err := queue.New(c.config.Order)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	configJSON, err := json.Marshal(c.config)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	run := &crawlRun{
		origin:     origin,
		start:      start,
		scope:      checker,
		session:    state.NewSession(start, origin, store, estimatedURLs),
		worklist:   wl,
		configJSON: configJSON,
		lastSave:   time.Now(),
	}

	if c.checkpoint != nil {
		pending := run.session.Restore(c.checkpoint)
		items := make([]queue.Item, 0, len(pending))
		for _, p := range pending {
			items = append(items, queue.Item{URL: p.URL, Depth: p.Depth})
		}
		err = wl.PushAll(items)
		c.logger.Infof("Resuming crawl: %d visited, %d pending",
			run.session.Visited().Len(), len(items))
	} else {
		err = wl.Push(queue.Item{URL: start, Depth: 0})
	}
	if err != nil {
		run.session.Close()
		return nil, fmt.Errorf("failed to seed worklist: %w", err)
	}

	return run, nil
}

// buildVisitor returns the page visitor and a function that releases its
// browsers. An injected visitor is used as is.
func (c *Crawler) buildVisitor(origin string) (Visitor, func() error, error) {
	if c.visitor != nil {
		return c.visitor, func() error { return nil }, nil
	}

	factory := c.engineFactory
	if factory == nil {
		factory = browser.LaunchFactory(c.config.Browser)
	}
	if n := c.config.Browser.LaunchRetries; n > 0 {
		rc := errs.DefaultRetryConfig()
		rc.MaxRetries = n
		factory = retryFactory(factory, errs.NewRetrier(rc), c.logger)
	}

	pool, err := browser.NewPool(factory, c.config.Browser)
	if err != nil {
		return nil, nil, errs.NewLaunchError(err)
	}

	log := c.logger.WithComponent("visitor")
	detector, err := readiness.Build(c.config.Readiness.Strategies, c.config.Readiness.Timing, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	normalizer := extract.NewNormalizer(c.config.QueryPolicy)
	extractor := extract.New(extract.DefaultSources(c.config.OnClickLinks), normalizer, log)

	v := visitor.New(pool, detector, extractor, c.config.visitorConfig(origin), c.metrics, log)
	return v, pool.Close, nil
}

// loop pops and visits pages until the worklist drains or ctx is done.
// It reports whether the worklist drained.
func (c *Crawler) loop(ctx context.Context, run *crawlRun, v Visitor) bool {
	for !run.worklist.IsEmpty() {
		if ctx.Err() != nil {
			return false
		}

		item, err := run.worklist.Pop()
		if err != nil {
			break
		}

		if run.session.HasVisited(item.URL) || !c.inScope(run, item) {
			c.metrics.RecordSkip()
			continue
		}
		run.session.MarkVisited(item.URL)

		c.progress.Crawling(item.URL, item.Depth)
		out := v.Visit(ctx, item.URL, item.Depth)

		if out.Cancelled() {
			// Put it back so the checkpoint lists it as pending.
			run.session.Interrupted(item.URL)
			if err := run.worklist.Push(item); err != nil {
				c.logger.WithError(err).WithField("url", item.URL).Warn("Failed to requeue interrupted page")
			}
			return false
		}

		run.session.Record(out.Record)
		c.stream(run, out.Record)

		if out.Failed() {
			c.progress.Failed(item.URL, item.Depth, out.Err)
			c.logger.ErrorEvent(out.Err, item.URL, "visit")
		} else {
			children := c.children(run, item, out.Links)
			if len(children) > 0 {
				if err := run.worklist.PushAll(children); err != nil {
					c.logger.WithError(err).WithField("url", item.URL).Warn("Failed to queue links")
				}
			}
			c.progress.Found(len(children), item.Depth)
		}

		c.metrics.SetWorklistDepth(run.worklist.Len())
		c.autosave(run)
	}

	return true
}

// inScope checks an item against the scope rules. The start page is
// always crawled, even when a rule would exclude it.
func (c *Crawler) inScope(run *crawlRun, item queue.Item) bool {
	if item.Depth == 0 && item.URL == run.start {
		return true
	}
	return run.scope.IsInScope(item.URL, item.Depth)
}

// children selects the links of a page that will be visited: unvisited,
// in scope at the next depth, and at most MaxChildren of them in
// document order.
func (c *Crawler) children(run *crawlRun, parent queue.Item, links []string) []queue.Item {
	depth := parent.Depth + 1
	if depth > c.config.MaxDepth {
		return nil
	}

	var items []queue.Item
	seen := make(map[string]bool, len(links))
	for _, link := range links {
		if seen[link] || run.session.HasVisited(link) {
			continue
		}
		seen[link] = true
		if !run.scope.IsInScope(link, depth) {
			continue
		}
		items = append(items, queue.Item{URL: link, Depth: depth, ParentURL: parent.URL})
		if c.config.MaxChildren > 0 && len(items) >= c.config.MaxChildren {
			break
		}
	}
	return items
}

func (c *Crawler) stream(run *crawlRun, r state.PageRecord) {
	if run.stream == nil {
		return
	}
	if err := run.stream.WriteRecord(r); err != nil {
		c.logger.WithError(err).Warn("Failed to stream record")
	}
}

// autosave writes a checkpoint when the configured interval has passed.
func (c *Crawler) autosave(run *crawlRun) {
	cfg := c.config.State
	if !cfg.Enabled || !cfg.AutoSave || cfg.Interval <= 0 {
		return
	}
	if time.Since(run.lastSave) < time.Duration(cfg.Interval)*time.Second {
		return
	}
	run.lastSave = time.Now()

	pending := pendingItems(run.worklist)
	if err := run.session.Save(pending, run.configJSON, false); err != nil {
		c.logger.WithError(err).Warn("Failed to save checkpoint")
		return
	}
	c.logger.Debugf("Checkpoint saved with %d queued entries", len(pending))
}

// finish checkpoints the session, writes the sitemap and builds the result.
func (c *Crawler) finish(run *crawlRun, complete bool) (*CrawlResult, error) {
	pending := pendingItems(run.worklist)
	if !complete {
		c.progress.Interrupted(len(pending))
		c.logger.Warnf("Crawl interrupted with %d pages pending", len(pending))
	}

	if c.config.State.Enabled {
		if err := run.session.Save(pending, run.configJSON, complete); err != nil {
			c.logger.WithError(err).Error("Failed to save checkpoint")
		}
	}

	records := run.session.Sitemap().Records()
	if err := output.WriteFile(c.config.Output.FilePath, records, c.config.Output.Pretty); err != nil {
		return nil, err
	}

	snapshot := c.metrics.Snapshot()
	c.logger.StatsEvent(snapshot.Summary())

	result := &CrawlResult{
		Target:      c.config.Target,
		Origin:      run.origin,
		StartedAt:   run.session.StartedAt,
		CompletedAt: time.Now(),
		Records:     records,
		Summary:     run.session.Sitemap().Summary(),
		Complete:    complete,
		Pending:     len(pending),
		OutputPath:  c.config.Output.FilePath,
		Metrics:     snapshot,
	}

	statePath := ""
	if c.config.State.Enabled {
		statePath = c.config.State.FilePath
	}
	c.progress.PrintSummary(progress.Summary{
		Records:    records,
		OutputPath: c.config.Output.FilePath,
		StatePath:  statePath,
		Complete:   complete,
	})

	return result, nil
}

// retryFactory retries failed browser starts.
func retryFactory(f browser.Factory, r *errs.Retrier, log *logger.Logger) browser.Factory {
	return func() (browser.Engine, error) {
		engine, res := errs.DoWithResult(context.Background(), r, "launch", "",
			func(context.Context) (browser.Engine, error) { return f() })
		if !res.Success {
			return nil, res.LastError
		}
		if res.Attempts > 1 {
			log.Warnf("Browser started after %d attempts", res.Attempts)
		}
		return engine, nil
	}
}

func pendingItems(wl queue.Worklist) []state.PendingItem {
	items := wl.Items()
	pending := make([]state.PendingItem, 0, len(items))
	for _, it := range items {
		pending = append(pending, state.PendingItem{URL: it.URL, Depth: it.Depth})
	}
	return pending
}
