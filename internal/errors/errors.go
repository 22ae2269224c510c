// Package errors provides the error taxonomy for the sitemap crawler.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Navigation is a failed page load (DNS, refused, blocked, click fallback miss).
	Navigation
	// Timeout is a bounded wait that ran out.
	Timeout
	// Network represents network-level failures.
	Network
	// Browser represents browser/CDP errors during a visit.
	Browser
	// Launch means the browser itself could not be started.
	Launch
	// Readiness is a readiness heuristic that did not settle.
	Readiness
	// Interaction is a scroll/hover script failure.
	Interaction
	// Extraction is a metadata or link harvesting failure.
	Extraction
	// Output is a failure writing the sitemap.
	Output
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Navigation:
		return "navigation"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	case Browser:
		return "browser"
	case Launch:
		return "launch"
	case Readiness:
		return "readiness"
	case Interaction:
		return "interaction"
	case Extraction:
		return "extraction"
	case Output:
		return "output"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatal reports whether errors of this type end the whole run.
func (t ErrorType) IsFatal() bool {
	return t == Launch || t == Output
}

// CrawlError represents a categorized crawl error.
type CrawlError struct {
	Type      ErrorType
	URL       string
	Operation string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is matches another CrawlError of the same type.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNavigationError creates a navigation error.
func NewNavigationError(url string, cause error) *CrawlError {
	return NewCrawlError(Navigation, url, "navigate", "failed to navigate to route", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, operation, "operation timed out", cause)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Network, url, operation, "network failure", cause)
}

// NewBrowserError creates a browser error.
func NewBrowserError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Browser, url, operation, "browser operation failed", cause)
}

// NewLaunchError creates a browser launch error.
func NewLaunchError(cause error) *CrawlError {
	return NewCrawlError(Launch, "", "launch", "failed to launch browser", cause)
}

// NewInteractionError creates an interaction error.
func NewInteractionError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Interaction, url, operation, "interaction script failed", cause)
}

// NewExtractionError creates an extraction error.
func NewExtractionError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Extraction, url, operation, "extraction failed", cause)
}

// NewOutputError creates an output error.
func NewOutputError(path string, cause error) *CrawlError {
	return NewCrawlError(Output, path, "write", "failed to write sitemap", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// NewPanicError wraps a recovered panic value.
func NewPanicError(url string, recovered interface{}) *CrawlError {
	return NewCrawlError(Browser, url, "visit", fmt.Sprintf("unexpected failure: %v", recovered), nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr
	}

	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled") {
		return NewCancelledError(url, "visit")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "visit", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "visit", err)
	}

	return NewCrawlError(Unknown, url, "visit", err.Error(), err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Chrome reports load failures as net::ERR_* strings.
	errStr := err.Error()
	return strings.Contains(errStr, "net::ERR_") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// IsFatal reports whether an error should abort the crawl.
func IsFatal(err error) bool {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type.IsFatal()
	}
	return false
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}
