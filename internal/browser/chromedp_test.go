package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"
)

// chromeBinary returns a locally installed Chrome, skipping the test when
// there is none.
func chromeBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary found")
	return ""
}

// =============================================================================
// chromedp Engine Tests
// =============================================================================

func TestChromedpPage_RespondsAfterNewPage(t *testing.T) {
	bin := chromeBinary(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body><a href="/about">About</a></body></html>`)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Engine = EngineChromedp
	cfg.BinPath = bin

	engine, err := Launch(cfg)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer engine.Close()

	// A short setup context must not bound the tab's lifetime.
	setupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	page, err := engine.NewPage(setupCtx)
	cancel()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := page.Navigate(ctx, srv.URL+"/"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	var title string
	if err := page.Eval(ctx, `() => document.title`, &title); err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if title != "Docs" {
		t.Errorf("title = %q, want Docs", title)
	}

	if got := page.URL(ctx); got != srv.URL+"/" {
		t.Errorf("URL() = %q, want %q", got, srv.URL+"/")
	}

	if err := page.WaitNetworkIdle(ctx, 200*time.Millisecond); err != nil {
		t.Errorf("WaitNetworkIdle() error = %v", err)
	}
}
