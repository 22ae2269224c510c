// Package readiness decides when a rendered page has settled enough to be
// read. A Detector polls an ordered chain of strategies, each under its own
// timeout; the first one that reports ready ends the chain. Running out of
// strategies is not an error: the page is read in whatever state it is in.
package readiness

import (
	"context"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
)

const (
	defaultQuiet    = 500 * time.Millisecond
	defaultInterval = 200 * time.Millisecond
)

// Strategy chains used by the two crawl modes.
var (
	SPAStrategies     = []string{FrameworkSignal, AppRoot, NavAndContent}
	GeneralStrategies = []string{AnchorStable}
)

// Timing holds every delay the detector uses.
type Timing struct {
	StrategyTimeout   time.Duration `json:"strategy_timeout" yaml:"strategy_timeout"`
	PollInterval      time.Duration `json:"poll_interval" yaml:"poll_interval"`
	StabilityInterval time.Duration `json:"stability_interval" yaml:"stability_interval"`
	StabilityMax      time.Duration `json:"stability_max" yaml:"stability_max"`
	StableSamples     int           `json:"stable_samples" yaml:"stable_samples"`
	SampleIdle        time.Duration `json:"sample_idle" yaml:"sample_idle"`
	Settle            time.Duration `json:"settle" yaml:"settle"`
	NetworkIdle       time.Duration `json:"network_idle" yaml:"network_idle"`
}

// SPATiming returns the timing used for client-rendered sites.
func SPATiming() Timing {
	return Timing{
		StrategyTimeout:   10 * time.Second,
		PollInterval:      defaultInterval,
		StabilityInterval: time.Second,
		StabilityMax:      30 * time.Second,
		StableSamples:     3,
		Settle:            3 * time.Second,
		NetworkIdle:       15 * time.Second,
	}
}

// GeneralTiming returns the timing used for mostly static sites.
func GeneralTiming() Timing {
	return Timing{
		StrategyTimeout:   10 * time.Second,
		PollInterval:      defaultInterval,
		StabilityInterval: time.Second,
		StabilityMax:      30 * time.Second,
		StableSamples:     3,
		SampleIdle:        5 * time.Second,
	}
}

// Step is one strategy with its own polling budget.
type Step struct {
	Strategy Strategy
	Timeout  time.Duration
	Interval time.Duration
}

// Result describes how an await ended.
type Result struct {
	Strategy string        `json:"strategy,omitempty"` // empty when nothing matched
	TimedOut bool          `json:"timed_out"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Detector awaits page readiness.
type Detector struct {
	Steps       []Step
	Settle      time.Duration
	NetworkIdle time.Duration
	IdleQuiet   time.Duration
	Logger      *logger.Logger
}

// Build creates a detector running the named strategies in order.
func Build(names []string, t Timing, log *logger.Logger) (*Detector, error) {
	d := &Detector{
		Settle:      t.Settle,
		NetworkIdle: t.NetworkIdle,
		IdleQuiet:   defaultQuiet,
		Logger:      log,
	}
	for _, name := range names {
		s, err := New(name, t)
		if err != nil {
			return nil, err
		}
		step := Step{Strategy: s, Timeout: t.StrategyTimeout, Interval: t.PollInterval}
		if name == AnchorStable {
			step.Timeout = t.StabilityMax
			step.Interval = t.StabilityInterval
		}
		d.Steps = append(d.Steps, step)
	}
	return d, nil
}

// Await blocks until a strategy reports ready or every strategy has run
// out of time, then waits out the settle delay and a bounded network-idle
// wait. It never fails; a cancelled ctx cuts every wait short.
func (d *Detector) Await(ctx context.Context, page browser.Page) Result {
	start := time.Now()
	log := d.log()
	var result Result

	for _, step := range d.Steps {
		if r, ok := step.Strategy.(Resetter); ok {
			r.Reset()
		}
		if d.poll(ctx, page, step) {
			result.Strategy = step.Strategy.Name()
			break
		}
		if ctx.Err() != nil {
			break
		}
		log.WithField("strategy", step.Strategy.Name()).Debug("Readiness strategy timed out")
	}
	result.TimedOut = result.Strategy == "" && len(d.Steps) > 0

	sleep(ctx, d.Settle)

	if d.NetworkIdle > 0 && ctx.Err() == nil {
		quiet := d.IdleQuiet
		if quiet <= 0 {
			quiet = defaultQuiet
		}
		idleCtx, cancel := context.WithTimeout(ctx, d.NetworkIdle)
		if err := page.WaitNetworkIdle(idleCtx, quiet); err != nil {
			log.WithError(err).Debug("Network did not go idle")
		}
		cancel()
	}

	result.Elapsed = time.Since(start)
	return result
}

// poll runs one step until it is ready or its timeout passes.
func (d *Detector) poll(ctx context.Context, page browser.Page, step Step) bool {
	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	interval := step.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		ready, err := step.Strategy.IsReady(stepCtx, page)
		if err == nil && ready {
			return true
		}
		if err != nil && stepCtx.Err() == nil {
			d.log().WithError(err).WithField("strategy", step.Strategy.Name()).Debug("Readiness probe failed")
		}

		timer.Reset(interval)
		select {
		case <-stepCtx.Done():
			return false
		case <-timer.C:
		}
	}
}

func (d *Detector) log() *logger.Logger {
	if d.Logger == nil {
		return logger.Nop()
	}
	return d.Logger
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
