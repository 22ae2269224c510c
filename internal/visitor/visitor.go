// Package visitor loads one page in the browser, waits for it to render,
// and turns it into a sitemap record plus the links it offers.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	errs "github.com/PentesterFlow/SiteMapper/internal/errors"
	"github.com/PentesterFlow/SiteMapper/internal/extract"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
	"github.com/PentesterFlow/SiteMapper/internal/metrics"
	"github.com/PentesterFlow/SiteMapper/internal/readiness"
	"github.com/PentesterFlow/SiteMapper/internal/state"
)

var errNoClickTarget = errors.New("no element routes to the target")

const defaultIdleQuiet = 500 * time.Millisecond

// Leaser hands out pages for the duration of one visit. *browser.Pool
// satisfies it.
type Leaser interface {
	Acquire(ctx context.Context) (browser.Page, error)
	Release(page browser.Page) error
}

// Config holds the per-visit timing and behaviour.
type Config struct {
	// Origin is the crawl's baseOrigin; links outside it are dropped.
	Origin            string
	NavigationTimeout time.Duration
	NetworkIdle       time.Duration // 0 skips the post-navigation idle wait
	IdleQuiet         time.Duration
	ClickSettle       time.Duration
	Interaction       Interaction
	InteractionLimit  time.Duration
	PostInteraction   time.Duration
	PreExtract        time.Duration
	// ActionTimeout bounds each page script outside navigation and
	// interaction. A page that stops answering fails with a timeout.
	ActionTimeout     time.Duration
	ContentThreshold  int
}

// Outcome is the result of one visit. A success carries a record and
// links; a failure carries an error record and no links. A cancelled
// visit carries neither and should be retried on resume.
type Outcome struct {
	Record    state.PageRecord
	Links     []string
	Stats     extract.Stats
	Readiness readiness.Result
	Fallback  bool // reached through the click fallback
	Err       error
	Elapsed   time.Duration
}

// Cancelled reports whether the visit was cut short by the crawl context.
func (o Outcome) Cancelled() bool {
	return o.Err != nil && errs.GetErrorType(o.Err) == errs.Cancelled
}

// Failed reports whether the outcome carries an error record.
func (o Outcome) Failed() bool {
	return o.Err != nil && !o.Cancelled()
}

// Visitor visits pages one at a time per leased page.
type Visitor struct {
	pages     Leaser
	readiness *readiness.Detector
	extractor *extract.Extractor
	metrics   *metrics.Collector
	config    Config
	logger    *logger.Logger
}

// New creates a visitor. Nil metrics and logger are replaced by a private
// collector and a no-op logger.
func New(pages Leaser, detector *readiness.Detector, extractor *extract.Extractor, config Config, m *metrics.Collector, log *logger.Logger) *Visitor {
	if detector == nil {
		detector = &readiness.Detector{}
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultSources(false), nil, log)
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.Interaction == "" {
		config.Interaction = InteractionNone
	}
	if config.IdleQuiet <= 0 {
		config.IdleQuiet = defaultIdleQuiet
	}
	return &Visitor{
		pages:     pages,
		readiness: detector,
		extractor: extractor,
		metrics:   m,
		config:    config,
		logger:    log,
	}
}

// Visit loads url and harvests it. It never panics and always releases
// the page it leased.
func (v *Visitor) Visit(ctx context.Context, url string, depth int) (out Outcome) {
	start := time.Now()
	log := v.logger.WithURL(url).WithDepth(depth)

	defer func() {
		if r := recover(); r != nil {
			err := errs.NewPanicError(url, r)
			log.WithError(err).Error("Recovered from panic during visit")
			out = failure(url, depth, err)
		}
		out.Elapsed = time.Since(start)
		if !out.Cancelled() {
			errType := ""
			if out.Err != nil {
				errType = errs.GetErrorType(out.Err).String()
			}
			v.metrics.RecordVisit(out.Elapsed, errType)
		}
		log.VisitEvent(url, depth, len(out.Links), out.Elapsed, out.Err)
	}()

	page, err := v.pages.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(url, "acquire page")
		}
		return failure(url, depth, errs.NewBrowserError(url, "acquire page", err))
	}
	defer func() {
		if err := v.pages.Release(page); err != nil {
			log.WithError(err).Debug("Failed to release page")
		}
	}()

	page.OnConsole(func(level, text string) {
		if strings.Contains(strings.ToLower(text), "error") {
			log.WithField("level", level).Warnf("Console: %s", text)
		}
	})

	fallback, err := v.navigate(ctx, page, url, log)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(url, "navigate")
		}
		return failure(url, depth, navigationError(url, err))
	}
	if fallback {
		v.metrics.RecordNavigationFallback()
	}

	ready := v.readiness.Await(ctx, page)
	v.metrics.RecordReadiness(ready.Strategy, ready.TimedOut)
	log.ReadinessEvent(url, ready.Strategy, ready.TimedOut, ready.Elapsed)
	if ctx.Err() != nil {
		return cancelled(url, "readiness")
	}

	v.interact(ctx, page, url, log)
	sleep(ctx, v.config.PreExtract)
	if ctx.Err() != nil {
		return cancelled(url, "interaction")
	}

	mdCtx, cancel := withTimeout(ctx, v.config.ActionTimeout)
	md, err := extract.ReadMetadata(mdCtx, page, v.config.ContentThreshold)
	timedOut := mdCtx.Err() == context.DeadlineExceeded
	cancel()
	if ctx.Err() != nil {
		return cancelled(url, "metadata")
	}
	if timedOut {
		return failure(url, depth, errs.NewTimeoutError(url, "metadata", context.DeadlineExceeded))
	}
	if err != nil {
		log.WithError(errs.NewExtractionError(url, "metadata", err)).Debug("Using default metadata")
	}

	exCtx, cancel := withTimeout(ctx, v.config.ActionTimeout)
	links, stats := v.extractor.Extract(exCtx, page, v.config.Origin)
	timedOut = exCtx.Err() == context.DeadlineExceeded
	cancel()
	if ctx.Err() != nil {
		return cancelled(url, "extract")
	}
	if timedOut {
		return failure(url, depth, errs.NewTimeoutError(url, "extract", context.DeadlineExceeded))
	}
	for kind, n := range stats.BySource {
		v.metrics.RecordLinks(kind.String(), n)
	}

	return Outcome{
		Record:    state.NewSuccessRecord(url, depth, md.Title, md.Description, md.HasContent),
		Links:     links,
		Stats:     stats,
		Readiness: ready,
		Fallback:  fallback,
	}
}

// navigate brings page to url. It reports whether the click fallback was
// needed. The page is left alone when it is already there.
func (v *Visitor) navigate(ctx context.Context, page browser.Page, url string, log *logger.Logger) (bool, error) {
	urlCtx, cancel := withTimeout(ctx, v.config.ActionTimeout)
	current := page.URL(urlCtx)
	cancel()
	if strings.TrimRight(current, "/") == strings.TrimRight(url, "/") {
		return false, nil
	}

	navCtx, cancel := withTimeout(ctx, v.config.NavigationTimeout)
	err := page.Navigate(navCtx, url)
	cancel()
	if err == nil {
		if v.config.NetworkIdle > 0 {
			idleCtx, cancel := context.WithTimeout(ctx, v.config.NetworkIdle)
			if err := page.WaitNetworkIdle(idleCtx, v.config.IdleQuiet); err != nil {
				log.WithError(err).Debug("Network did not go idle after navigation")
			}
			cancel()
		}
		return false, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	log.WithError(err).Warn("Direct navigation failed, trying click fallback")

	var clicked bool
	clickCtx, cancel := withTimeout(ctx, v.config.ActionTimeout)
	ferr := page.Eval(clickCtx, clickFallbackScript, &clicked, url)
	cancel()
	if ferr != nil || !clicked {
		if ferr == nil {
			ferr = errNoClickTarget
		}
		return false, fmt.Errorf("%w (click fallback: %v)", err, ferr)
	}

	sleep(ctx, v.config.ClickSettle)
	return true, ctx.Err()
}

// interact runs the configured interaction. Failures only degrade the
// page and are swallowed.
func (v *Visitor) interact(ctx context.Context, page browser.Page, url string, log *logger.Logger) {
	if v.config.Interaction == InteractionNone {
		return
	}

	script, args, err := v.config.Interaction.script()
	if err == nil {
		ictx, cancel := withTimeout(ctx, v.config.InteractionLimit)
		err = page.Eval(ictx, script, nil, args...)
		cancel()
	}
	if err != nil && ctx.Err() == nil {
		v.metrics.RecordInteractionFailure()
		log.WithError(errs.NewInteractionError(url, string(v.config.Interaction), err)).Debug("Interaction failed")
	}

	sleep(ctx, v.config.PostInteraction)
}

// navigationError types a failed load by its cause.
func navigationError(url string, err error) *errs.CrawlError {
	switch errs.Categorize(err, url).Type {
	case errs.Timeout:
		return errs.NewTimeoutError(url, "navigate", err)
	case errs.Network:
		return errs.NewNetworkError(url, "navigate", err)
	}
	return errs.NewNavigationError(url, err)
}

func failure(url string, depth int, err error) Outcome {
	return Outcome{Record: state.NewErrorRecord(url, depth, err), Err: err}
}

func cancelled(url, operation string) Outcome {
	return Outcome{Err: errs.NewCancelledError(url, operation)}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
