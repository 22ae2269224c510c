package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Navigation, "navigation"},
		{Timeout, "timeout"},
		{Network, "network"},
		{Browser, "browser"},
		{Launch, "launch"},
		{Readiness, "readiness"},
		{Interaction, "interaction"},
		{Extraction, "extraction"},
		{Output, "output"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsFatal(t *testing.T) {
	fatal := map[ErrorType]bool{Launch: true, Output: true}
	for _, typ := range []ErrorType{Unknown, Navigation, Timeout, Network, Browser, Launch, Readiness, Interaction, Extraction, Output, Cancelled} {
		if got := typ.IsFatal(); got != fatal[typ] {
			t.Errorf("%s.IsFatal() = %v, want %v", typ, got, fatal[typ])
		}
	}
}

// =============================================================================
// CrawlError Tests
// =============================================================================

func TestCrawlError_Error(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := NewNavigationError("https://example.com/a", cause)

	msg := err.Error()
	for _, want := range []string{"navigation", "navigate", "https://example.com/a", "net::ERR_NAME_NOT_RESOLVED"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	plain := NewCrawlError(Extraction, "https://example.com", "metadata", "no title", nil)
	if strings.Contains(plain.Error(), "caused by") {
		t.Errorf("Error() without cause should not mention cause: %q", plain.Error())
	}
}

func TestCrawlError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("root")
	err := NewBrowserError("https://example.com", "eval", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, &CrawlError{Type: Browser}) {
		t.Error("errors.Is should match same type")
	}
	if errors.Is(err, &CrawlError{Type: Navigation}) {
		t.Error("errors.Is should not match a different type")
	}

	wrapped := fmt.Errorf("visit failed: %w", err)
	if GetErrorType(wrapped) != Browser {
		t.Errorf("GetErrorType(wrapped) = %v, want browser", GetErrorType(wrapped))
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *CrawlError
		want ErrorType
	}{
		{"navigation", NewNavigationError("u", nil), Navigation},
		{"timeout", NewTimeoutError("u", "navigate", nil), Timeout},
		{"network", NewNetworkError("u", "navigate", nil), Network},
		{"browser", NewBrowserError("u", "page", nil), Browser},
		{"launch", NewLaunchError(nil), Launch},
		{"interaction", NewInteractionError("u", "scroll", nil), Interaction},
		{"extraction", NewExtractionError("u", "links", nil), Extraction},
		{"output", NewOutputError("sitemap.json", nil), Output},
		{"cancelled", NewCancelledError("u", "visit"), Cancelled},
		{"panic", NewPanicError("u", "boom"), Browser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.want {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.want)
			}
		})
	}
}

func TestNewPanicError_Message(t *testing.T) {
	err := NewPanicError("https://example.com", "target closed")
	if !strings.Contains(err.Message, "target closed") {
		t.Errorf("Message = %q, want recovered value", err.Message)
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"canceled", context.Canceled, Cancelled},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"wrapped deadline", fmt.Errorf("navigate: %w", context.DeadlineExceeded), Timeout},
		{"timeout message", errors.New("navigation timeout of 30000 ms exceeded"), Timeout},
		{"chrome net error", errors.New("page load failed: net::ERR_CONNECTION_REFUSED"), Network},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, Network},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, Network},
		{"unknown", errors.New("something odd"), Unknown},
		{"passthrough", NewOutputError("x", nil), Output},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "https://example.com")
			if got.Type != tt.want {
				t.Errorf("Categorize() type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "u") != nil {
		t.Error("Categorize(nil) should return nil")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("start: %w", NewLaunchError(errors.New("no chrome")))) {
		t.Error("launch error should be fatal")
	}
	if IsFatal(NewNavigationError("u", nil)) {
		t.Error("navigation error should not be fatal")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error should not be fatal")
	}
}

// =============================================================================
// Retrier Tests
// =============================================================================

func fastRetry(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetrier_SucceedsAfterFailures(t *testing.T) {
	r := NewRetrier(fastRetry(3))

	calls := 0
	res := r.Do(context.Background(), "launch", "", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("chrome exited")
		}
		return nil
	})

	if !res.Success || res.Attempts != 3 {
		t.Errorf("result = %+v, want success on attempt 3", res)
	}
}

func TestRetrier_GivesUp(t *testing.T) {
	r := NewRetrier(fastRetry(2))
	boom := errors.New("chrome not found")

	res := r.Do(context.Background(), "launch", "", func(ctx context.Context) error { return boom })

	if res.Success || res.Attempts != 3 {
		t.Errorf("result = %+v, want 3 failed attempts", res)
	}
	if !errors.Is(res.LastError, boom) {
		t.Errorf("LastError = %v, want %v", res.LastError, boom)
	}
}

func TestRetrier_NonRetryable(t *testing.T) {
	cfg := fastRetry(5)
	cfg.Retryable = func(err error) bool { return false }
	r := NewRetrier(cfg)

	res := r.Do(context.Background(), "launch", "", func(ctx context.Context) error {
		return errors.New("bad flag")
	})
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestRetrier_Cancelled(t *testing.T) {
	r := NewRetrier(fastRetry(5))
	ctx, cancel := context.WithCancel(context.Background())

	res := r.Do(ctx, "launch", "", func(ctx context.Context) error {
		cancel()
		return errors.New("interrupted")
	})

	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if GetErrorType(res.LastError) != Cancelled {
		t.Errorf("LastError type = %v, want Cancelled", GetErrorType(res.LastError))
	}
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(fastRetry(1))
	calls := 0

	v, res := DoWithResult(context.Background(), r, "launch", "", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first try fails")
		}
		return "engine", nil
	})

	if !res.Success || v != "engine" {
		t.Errorf("DoWithResult = %q, %+v", v, res)
	}
}
