// Package shutdown turns SIGINT/SIGTERM into a cancelled crawl context and
// runs cleanup callbacks once the crawl has unwound.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/logger"
)

// Callback is a named cleanup step run during shutdown.
type Callback func(ctx context.Context) error

type namedCallback struct {
	name string
	fn   Callback
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	// OnForce runs on a second signal while the first is still being
	// handled. The CLI exits from here.
	OnForce        func()
	OnShutdownDone func(elapsed time.Duration, errors []error)
	Logger         *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler manages graceful shutdown.
//
// The first signal only cancels Context, so the crawler can stop between
// pages, write its partial sitemap and checkpoint. Callbacks run when
// Shutdown is called, in reverse registration order.
type Handler struct {
	mu        sync.Mutex
	callbacks []namedCallback

	interrupted  atomic.Bool
	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan  chan os.Signal
	stopOnce sync.Once

	onForce        func()
	onShutdownDone func(elapsed time.Duration, errors []error)
	logger         *logger.Logger
}

// New creates a handler and starts receiving the configured signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		done:           make(chan struct{}),
		timeout:        cfg.Timeout,
		ctx:            ctx,
		cancel:         cancel,
		sigChan:        make(chan os.Signal, 2),
		onForce:        cfg.OnForce,
		onShutdownDone: cfg.OnShutdownDone,
		logger:         cfg.Logger.WithComponent("shutdown"),
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	return h
}

// NewDefault creates a handler with default configuration.
func NewDefault() *Handler {
	return New(DefaultConfig())
}

// Register adds a cleanup callback.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: fn})
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled on the first signal or on Shutdown.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether a signal (or Interrupt) cancelled Context.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// IsShuttingDown returns whether Shutdown has started.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done is closed when Shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Listen handles signals in the background until Shutdown completes.
func (h *Handler) Listen() {
	go func() {
		for {
			select {
			case sig := <-h.sigChan:
				if h.interrupted.Load() {
					h.logger.WithField("signal", sig.String()).Warn("Second signal, forcing exit")
					if h.onForce != nil {
						h.onForce()
					}
					continue
				}
				h.logger.WithField("signal", sig.String()).Warn("Interrupted, finishing current page")
				h.Interrupt()
			case <-h.done:
				return
			}
		}
	}()
}

// Interrupt cancels Context without running callbacks.
func (h *Handler) Interrupt() {
	h.interrupted.Store(true)
	h.cancel()
}

// Trigger delivers sig as if the process had received it.
func (h *Handler) Trigger(sig os.Signal) {
	select {
	case h.sigChan <- sig:
	default:
	}
}

// Shutdown cancels Context and runs the callbacks in reverse registration
// order, each bounded by the handler timeout. Only the first call does
// anything; it returns the callback errors.
func (h *Handler) Shutdown() []error {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return nil
	}

	start := time.Now()
	h.cancel()
	h.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), h.timeout)
	defer shutdownCancel()

	h.mu.Lock()
	callbacks := append([]namedCallback(nil), h.callbacks...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := h.execute(shutdownCtx, cb); err != nil {
			h.logger.WithError(err).WithField("callback", cb.name).Warn("Shutdown callback failed")
			errs = append(errs, err)
		}
	}

	if h.onShutdownDone != nil {
		h.onShutdownDone(time.Since(start), errs)
	}
	close(h.done)
	return errs
}

func (h *Handler) execute(ctx context.Context, cb namedCallback) error {
	done := make(chan error, 1)
	go func() {
		done <- cb.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: cb.name}
	}
}

// Stop stops signal delivery to the handler.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
	})
}

// TimeoutError is returned when a callback outlives the handler timeout.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
