// Package progress prints crawl progress and the final summary.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/SiteMapper/internal/state"
)

// listLimit is how many pages PrintSummary lists.
const listLimit = 10

// Content markers used in the page list.
const (
	MarkerContent = "■"
	MarkerEmpty   = "□"
)

// Reporter writes human-readable progress lines.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer

	pagesCrawled atomic.Int64
	linksFound   atomic.Int64
	errors       atomic.Int64

	startTime time.Time
	target    string
}

// New creates a reporter writing to w, or to stdout when w is nil.
func New(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{out: w, startTime: time.Now()}
}

// Discard returns a reporter that prints nothing.
func Discard() *Reporter {
	return New(io.Discard)
}

func (r *Reporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Start prints the crawl banner.
func (r *Reporter) Start(target, origin, mode string, maxDepth int) {
	r.mu.Lock()
	r.startTime = time.Now()
	r.target = target
	r.mu.Unlock()

	r.printf("Starting %s crawl of: %s\n", mode, target)
	r.printf("Base URL: %s\n", origin)
	r.printf("Max depth: %d\n", maxDepth)
	r.printf("%s\n", strings.Repeat("=", 60))
}

// Crawling prints the line for a page about to be visited.
func (r *Reporter) Crawling(url string, depth int) {
	r.pagesCrawled.Add(1)
	r.printf("%sCrawling: %s (depth: %d)\n", indent(depth), url, depth)
}

// Found prints how many new links a page contributed.
func (r *Reporter) Found(n, depth int) {
	r.linksFound.Add(int64(n))
	if n == 0 {
		return
	}
	r.printf("%sFound %d new links to crawl\n", indent(depth), n)
}

// Failed prints a visit error.
func (r *Reporter) Failed(url string, depth int, err error) {
	r.errors.Add(1)
	r.printf("%s[ERROR] %s: %v\n", indent(depth), url, err)
}

// Interrupted notes that the crawl stopped early.
func (r *Reporter) Interrupted(pending int) {
	r.printf("\nInterrupted, %d pages left in the worklist\n", pending)
}

// Summary is what PrintSummary reports on.
type Summary struct {
	Records    []state.PageRecord
	OutputPath string
	StatePath  string
	Complete   bool
}

// PrintSummary prints the final summary box and the first pages found.
func (r *Reporter) PrintSummary(s Summary) {
	r.mu.Lock()
	duration := time.Since(r.startTime)
	target := r.target
	r.mu.Unlock()

	var b strings.Builder
	title := "Crawl Complete"
	if !s.Complete {
		title = "Crawl Stopped"
	}

	var successful []state.PageRecord
	errors, withContent := 0, 0
	for _, rec := range s.Records {
		if rec.Failed {
			errors++
			continue
		}
		successful = append(successful, rec)
		if rec.HasContent {
			withContent++
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(&b, "║%s║\n", center(title, 62))
	fmt.Fprintln(&b, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(&b)
	if target != "" {
		fmt.Fprintf(&b, "  Target:          %s\n", truncateURL(target, 50))
	}
	fmt.Fprintf(&b, "  Duration:        %s\n", formatDuration(duration))
	fmt.Fprintf(&b, "  Total pages:     %d\n", len(s.Records))
	fmt.Fprintf(&b, "  Successful:      %d\n", len(successful))
	fmt.Fprintf(&b, "  With content:    %d\n", withContent)
	fmt.Fprintf(&b, "  Errors:          %d\n", errors)
	if s.OutputPath != "" {
		fmt.Fprintf(&b, "  Results saved:   %s\n", s.OutputPath)
	}
	if !s.Complete && s.StatePath != "" {
		fmt.Fprintf(&b, "  Resume with:     sitemapper resume --state-file %s\n", s.StatePath)
	}

	if len(successful) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "  Pages found:")
		for i, rec := range successful {
			if i == listLimit {
				break
			}
			marker := MarkerEmpty
			if rec.HasContent {
				marker = MarkerContent
			}
			fmt.Fprintf(&b, "    %s %s - %s\n", marker, rec.URL, rec.Title)
		}
		if len(successful) > listLimit {
			fmt.Fprintf(&b, "    ... and %d more pages\n", len(successful)-listLimit)
		}
	}
	fmt.Fprintln(&b)

	r.printf("%s", b.String())
}

// Stats returns the counters seen so far.
func (r *Reporter) Stats() (pagesCrawled, linksFound, errors int64) {
	return r.pagesCrawled.Load(), r.linksFound.Load(), r.errors.Load()
}

func indent(depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat("  ", depth)
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
