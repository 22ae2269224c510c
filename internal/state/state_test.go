package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// VisitedSet Tests
// =============================================================================

func TestVisitedSet_Insert(t *testing.T) {
	v := NewVisitedSet(100)

	url := "https://example.com/about"
	if v.Contains(url) {
		t.Error("URL should not be present before insert")
	}
	if !v.Insert(url) {
		t.Error("first Insert should report new")
	}
	if v.Insert(url) {
		t.Error("second Insert should report duplicate")
	}
	if !v.Contains(url) {
		t.Error("URL should be present after insert")
	}
	if v.Len() != 1 {
		t.Errorf("Len = %d, want 1", v.Len())
	}
}

func TestVisitedSet_AllKeepsOrder(t *testing.T) {
	v := NewVisitedSet(100)
	urls := []string{
		"https://example.com",
		"https://example.com/b",
		"https://example.com/a",
	}
	v.InsertBatch(urls)
	v.InsertBatch(urls)

	got := v.All()
	if len(got) != len(urls) {
		t.Fatalf("All() len = %d, want %d", len(got), len(urls))
	}
	for i := range urls {
		if got[i] != urls[i] {
			t.Errorf("All()[%d] = %s, want %s", i, got[i], urls[i])
		}
	}
}

func TestVisitedSet_ConcurrentInsertHasOneWinner(t *testing.T) {
	v := NewVisitedSet(1000)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Insert("https://example.com/contended") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", wins.Load())
	}
}

// =============================================================================
// PageRecord Tests
// =============================================================================

func TestPageRecord_MarshalSuccess(t *testing.T) {
	r := PageRecord{
		URL:         "https://example.com",
		Title:       "Home",
		Description: "Welcome",
		Depth:       0,
		HasContent:  true,
		Timestamp:   1700000000.5,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if fields["hasContent"] != true {
		t.Errorf("hasContent = %v, want true", fields["hasContent"])
	}
	if _, ok := fields["error"]; ok {
		t.Error("success record should not carry error")
	}
	if fields["timestamp"] != 1700000000.5 {
		t.Errorf("timestamp = %v", fields["timestamp"])
	}
}

func TestPageRecord_MarshalError(t *testing.T) {
	r := NewErrorRecord("https://example.com/x", 1, errors.New("navigation timed out"))

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if fields["error"] != true {
		t.Errorf("error = %v, want true", fields["error"])
	}
	if _, ok := fields["hasContent"]; ok {
		t.Error("error record should not carry hasContent")
	}
	if fields["title"] != ErrorTitle {
		t.Errorf("title = %v, want %s", fields["title"], ErrorTitle)
	}
	if fields["description"] != "navigation timed out" {
		t.Errorf("description = %v", fields["description"])
	}
}

func TestNewSuccessRecord(t *testing.T) {
	before := EpochSeconds(time.Now())
	r := NewSuccessRecord("https://example.com/a", 2, "A", "desc", false)

	if r.Failed {
		t.Error("success record should not be failed")
	}
	if r.Depth != 2 || r.Title != "A" || r.Description != "desc" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.Timestamp < before {
		t.Errorf("Timestamp = %f, want >= %f", r.Timestamp, before)
	}
}

// =============================================================================
// Sitemap Tests
// =============================================================================

func TestSitemap_AppendOrderAndSummary(t *testing.T) {
	s := NewSitemap()
	s.Append(NewSuccessRecord("https://example.com", 0, "Home", "", true))
	s.Append(NewErrorRecord("https://example.com/broken", 1, errors.New("boom")))
	s.Append(NewSuccessRecord("https://example.com/about", 1, "About", "", false))

	records := s.Records()
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	wantOrder := []string{"https://example.com", "https://example.com/broken", "https://example.com/about"}
	for i, want := range wantOrder {
		if records[i].URL != want {
			t.Errorf("records[%d].URL = %s, want %s", i, records[i].URL, want)
		}
	}

	sum := s.Summary()
	want := Summary{Total: 3, Successful: 2, Errors: 1, WithContent: 1}
	if sum != want {
		t.Errorf("Summary = %+v, want %+v", sum, want)
	}
}

func TestSitemap_RecordsIsCopy(t *testing.T) {
	s := NewSitemap()
	s.Append(NewSuccessRecord("https://example.com", 0, "Home", "", true))

	records := s.Records()
	records[0].Title = "changed"

	if s.Records()[0].Title != "Home" {
		t.Error("Records() should return a copy")
	}
}

// =============================================================================
// Session Tests
// =============================================================================

func TestSession_CheckpointRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	s := NewSession("https://example.com/", "https://example.com", store, 100)

	s.MarkVisited("https://example.com")
	s.Record(NewSuccessRecord("https://example.com", 0, "Home", "", true))
	s.MarkVisited("https://example.com/about")

	pending := []PendingItem{{URL: "https://example.com/contact", Depth: 1}}
	if err := s.Save(pending, json.RawMessage(`{"mode":"spa"}`), false); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	cp, err := store.Load()
	if err != nil || cp == nil {
		t.Fatalf("Load = %v, %v", cp, err)
	}

	restored := NewSession(cp.Target, cp.Origin, nil, 100)
	gotPending := restored.Restore(cp)

	if len(gotPending) != 1 || gotPending[0].URL != "https://example.com/contact" {
		t.Errorf("pending = %+v", gotPending)
	}
	if !restored.HasVisited("https://example.com/about") {
		t.Error("visited set not restored")
	}
	if restored.Sitemap().Len() != 1 {
		t.Errorf("records = %d, want 1", restored.Sitemap().Len())
	}
	if !restored.StartedAt.Equal(s.StartedAt) {
		t.Error("StartedAt should be restored")
	}
}

func TestSession_CheckpointRequeuesInterruptedVisit(t *testing.T) {
	s := NewSession("https://example.com", "https://example.com", nil, 10)
	s.MarkVisited("https://example.com")
	s.MarkVisited("https://example.com/slow")
	s.Interrupted("https://example.com/slow")

	cp := s.Checkpoint([]PendingItem{{URL: "https://example.com/slow", Depth: 1}}, nil, false)

	if len(cp.VisitedURLs) != 1 || cp.VisitedURLs[0] != "https://example.com" {
		t.Errorf("VisitedURLs = %v, interrupted URL should not be listed", cp.VisitedURLs)
	}
	if len(cp.Pending) != 1 || cp.Pending[0].URL != "https://example.com/slow" {
		t.Errorf("Pending = %+v, interrupted URL should stay pending", cp.Pending)
	}
	if !s.HasVisited("https://example.com/slow") {
		t.Error("Checkpoint must not change the live visited set")
	}
}

func TestSession_CheckpointDropsStalePending(t *testing.T) {
	s := NewSession("https://example.com", "https://example.com", nil, 10)
	for _, u := range []string{"https://example.com", "https://example.com/a", "https://example.com/b"} {
		s.MarkVisited(u)
	}
	s.MarkVisited("https://example.com/c")
	s.Interrupted("https://example.com/c")

	// A stack keeps older entries for pages reached again through
	// another path.
	pending := []PendingItem{
		{URL: "https://example.com/c", Depth: 3},
		{URL: "https://example.com/b", Depth: 1},
		{URL: "https://example.com/d", Depth: 1},
	}
	cp := s.Checkpoint(pending, nil, false)

	wantVisited := []string{"https://example.com", "https://example.com/a", "https://example.com/b"}
	if len(cp.VisitedURLs) != len(wantVisited) {
		t.Fatalf("VisitedURLs = %v, want %v", cp.VisitedURLs, wantVisited)
	}
	for i, u := range wantVisited {
		if cp.VisitedURLs[i] != u {
			t.Errorf("VisitedURLs[%d] = %s, want %s", i, cp.VisitedURLs[i], u)
		}
	}

	wantPending := []string{"https://example.com/c", "https://example.com/d"}
	if len(cp.Pending) != len(wantPending) {
		t.Fatalf("Pending = %+v, want %v", cp.Pending, wantPending)
	}
	for i, u := range wantPending {
		if cp.Pending[i].URL != u {
			t.Errorf("Pending[%d] = %s, want %s", i, cp.Pending[i].URL, u)
		}
	}
}

func TestSession_CheckpointWithoutInterruptKeepsVisited(t *testing.T) {
	s := NewSession("https://example.com", "https://example.com", nil, 10)
	s.MarkVisited("https://example.com")
	s.MarkVisited("https://example.com/a")

	cp := s.Checkpoint([]PendingItem{{URL: "https://example.com/a", Depth: 2}}, nil, false)

	if len(cp.VisitedURLs) != 2 {
		t.Errorf("VisitedURLs = %v, want both pages", cp.VisitedURLs)
	}
	if len(cp.Pending) != 0 {
		t.Errorf("Pending = %+v, stale entry should be dropped", cp.Pending)
	}
}

func TestSession_SaveWithoutStore(t *testing.T) {
	s := NewSession("https://example.com", "https://example.com", nil, 10)
	if err := s.Save(nil, nil, true); err != nil {
		t.Errorf("Save without store error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close without store error = %v", err)
	}
}

func TestSession_IndependentSessions(t *testing.T) {
	a := NewSession("https://a.example", "https://a.example", nil, 10)
	b := NewSession("https://a.example", "https://a.example", nil, 10)

	a.MarkVisited("https://a.example")
	if b.HasVisited("https://a.example") {
		t.Error("sessions should not share visited state")
	}
}

// =============================================================================
// Store Tests
// =============================================================================

func sampleCheckpoint() *Checkpoint {
	return &Checkpoint{
		Target:      "https://example.com",
		Origin:      "https://example.com",
		StartedAt:   time.Now().Add(-time.Minute).Truncate(time.Second),
		VisitedURLs: []string{"https://example.com", "https://example.com/a"},
		Pending:     []PendingItem{{URL: "https://example.com/b", Depth: 1}},
		Records: []PageRecord{
			NewSuccessRecord("https://example.com", 0, "Home", "", true),
			NewErrorRecord("https://example.com/a", 1, errors.New("timeout")),
		},
	}
}

func TestStores_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	bolt, err := NewBoltStore(filepath.Join(dir, "nested", "state.db"))
	if err != nil {
		t.Fatalf("NewBoltStore error = %v", err)
	}

	stores := []struct {
		name  string
		store Store
	}{
		{"bolt", bolt},
		{"file", NewFileStore(filepath.Join(dir, "state.json"), false)},
		{"gzip", NewFileStore(filepath.Join(dir, "state.json"), true)},
		{"memory", NewMemoryStore()},
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.store.Close()

			empty, err := tt.store.Load()
			if err != nil {
				t.Fatalf("Load empty error = %v", err)
			}
			if empty != nil {
				t.Fatalf("Load empty = %+v, want nil", empty)
			}

			want := sampleCheckpoint()
			if err := tt.store.Save(want); err != nil {
				t.Fatalf("Save error = %v", err)
			}

			got, err := tt.store.Load()
			if err != nil {
				t.Fatalf("Load error = %v", err)
			}
			if got.Target != want.Target || len(got.VisitedURLs) != 2 || len(got.Pending) != 1 {
				t.Errorf("Load = %+v", got)
			}
			if len(got.Records) != 2 || !got.Records[1].Failed || !got.Records[0].HasContent {
				t.Errorf("records not preserved: %+v", got.Records)
			}
			if sum := got.Summary(); sum.Errors != 1 || sum.Successful != 1 {
				t.Errorf("Summary = %+v", sum)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		file string
		want string
	}{
		{"state.db", "*state.BoltStore"},
		{"state.json", "*state.FileStore"},
		{"state.json.gz", "*state.FileStore"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			store, err := OpenStore(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("OpenStore error = %v", err)
			}
			defer store.Close()

			if got := fmt.Sprintf("%T", store); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOpenStore_GzipPath(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "state.json.gz"))
	if err != nil {
		t.Fatalf("OpenStore error = %v", err)
	}
	fs := store.(*FileStore)
	if !fs.compressed || strings.HasSuffix(fs.path, ".gz") {
		t.Errorf("FileStore = %+v, want compressed with base path", fs)
	}
}
