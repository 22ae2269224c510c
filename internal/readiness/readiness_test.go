package readiness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/browser/browsertest"
	"github.com/PentesterFlow/SiteMapper/internal/framework"
)

func fastTiming() Timing {
	return Timing{
		StrategyTimeout:   60 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		StabilityInterval: 5 * time.Millisecond,
		StabilityMax:      time.Second,
		StableSamples:     3,
	}
}

func mustBuild(t *testing.T, names []string, timing Timing) *Detector {
	t.Helper()
	d, err := Build(names, timing, nil)
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}
	return d
}

var frameworkScript = framework.NewDetector().Script()

// =============================================================================
// Detector Tests
// =============================================================================

func TestDetector_FirstSuccessShortCircuits(t *testing.T) {
	d := mustBuild(t, SPAStrategies, fastTiming())
	page := browsertest.NewFakePage().
		Return(frameworkScript, map[string]interface{}{"frameworks": []string{"react"}, "complete": false}).
		Return(appRootScript, true)

	result := d.Await(context.Background(), page)

	if result.Strategy != FrameworkSignal || result.TimedOut {
		t.Errorf("Await = %+v, want framework-signal", result)
	}
	if n := page.EvalCount(appRootScript); n != 0 {
		t.Errorf("app-root evaluated %d times after earlier success", n)
	}
}

func TestDetector_FallsThroughChain(t *testing.T) {
	d := mustBuild(t, SPAStrategies, fastTiming())
	page := browsertest.NewFakePage().
		Return(frameworkScript, map[string]interface{}{"frameworks": []string{}, "complete": false}).
		Return(appRootScript, false).
		Return(navAndContentScript, true)

	result := d.Await(context.Background(), page)

	if result.Strategy != NavAndContent {
		t.Errorf("Strategy = %q, want %q", result.Strategy, NavAndContent)
	}
	if page.EvalCount(frameworkScript) == 0 || page.EvalCount(appRootScript) == 0 {
		t.Error("earlier strategies should have been polled")
	}
}

func TestDetector_DocumentCompleteIsReady(t *testing.T) {
	d := mustBuild(t, []string{FrameworkSignal}, fastTiming())
	page := browsertest.NewFakePage().
		Return(frameworkScript, map[string]interface{}{"frameworks": []string{}, "complete": true})

	if result := d.Await(context.Background(), page); result.Strategy != FrameworkSignal {
		t.Errorf("Await = %+v, want framework-signal", result)
	}
}

func TestDetector_AllTimeOutStillProceeds(t *testing.T) {
	d := mustBuild(t, SPAStrategies, fastTiming())
	page := browsertest.NewFakePage() // every probe returns nothing

	start := time.Now()
	result := d.Await(context.Background(), page)

	if !result.TimedOut || result.Strategy != "" {
		t.Errorf("Await = %+v, want timed out", result)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Await took %v, each step should respect its timeout", elapsed)
	}
}

func TestDetector_CancelledContext(t *testing.T) {
	timing := fastTiming()
	timing.Settle = time.Minute
	timing.NetworkIdle = time.Minute
	d := mustBuild(t, SPAStrategies, timing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	d.Await(ctx, browsertest.NewFakePage())
	if time.Since(start) > time.Second {
		t.Error("Await should return promptly on a cancelled context")
	}
}

func TestDetector_NoStrategies(t *testing.T) {
	d := mustBuild(t, nil, fastTiming())
	result := d.Await(context.Background(), browsertest.NewFakePage())
	if result.TimedOut {
		t.Error("an empty chain should not report a timeout")
	}
}

func TestBuild_UnknownStrategy(t *testing.T) {
	if _, err := Build([]string{"magic"}, fastTiming(), nil); err == nil {
		t.Error("Build should reject unknown strategy names")
	}
}

func TestBuild_AnchorStepUsesStabilityTiming(t *testing.T) {
	timing := fastTiming()
	d := mustBuild(t, GeneralStrategies, timing)

	if len(d.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(d.Steps))
	}
	if d.Steps[0].Timeout != timing.StabilityMax || d.Steps[0].Interval != timing.StabilityInterval {
		t.Errorf("step = %+v", d.Steps[0])
	}
}

// =============================================================================
// AnchorStability Tests
// =============================================================================

func TestAnchorStability_StableCount(t *testing.T) {
	d := mustBuild(t, GeneralStrategies, fastTiming())
	page := browsertest.NewFakePage().Return(anchorCountScript, 5)

	result := d.Await(context.Background(), page)

	if result.Strategy != AnchorStable {
		t.Fatalf("Await = %+v, want anchor-stability", result)
	}
	// First sample moves the count off zero, three more confirm it.
	if n := page.EvalCount(anchorCountScript); n != 4 {
		t.Errorf("samples = %d, want 4", n)
	}
}

func TestAnchorStability_EmptyPage(t *testing.T) {
	d := mustBuild(t, GeneralStrategies, fastTiming())
	page := browsertest.NewFakePage().Return(anchorCountScript, 0)

	d.Await(context.Background(), page)

	if n := page.EvalCount(anchorCountScript); n != 3 {
		t.Errorf("samples = %d, want 3", n)
	}
}

func TestAnchorStability_GrowingCountTimesOut(t *testing.T) {
	timing := fastTiming()
	timing.StabilityMax = 80 * time.Millisecond
	d := mustBuild(t, GeneralStrategies, timing)

	var count atomic.Int32
	page := browsertest.NewFakePage().Handle(anchorCountScript, func(...interface{}) (interface{}, error) {
		return count.Add(1), nil
	})

	if result := d.Await(context.Background(), page); !result.TimedOut {
		t.Errorf("Await = %+v, want timed out", result)
	}
}

func TestAnchorStability_ResetBetweenAwaits(t *testing.T) {
	d := mustBuild(t, GeneralStrategies, fastTiming())
	page := browsertest.NewFakePage().Return(anchorCountScript, 2)

	d.Await(context.Background(), page)
	d.Await(context.Background(), page)

	if n := page.EvalCount(anchorCountScript); n != 8 {
		t.Errorf("samples = %d, want 8 (state must reset per await)", n)
	}
}
