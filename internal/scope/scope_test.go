package scope

import (
	"testing"
)

// =============================================================================
// Origin Tests
// =============================================================================

func TestOrigin(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"https://example.com/", "https://example.com", false},
		{"HTTPS://Example.COM/path?q=1#x", "https://example.com", false},
		{"http://example.com:80/a", "http://example.com", false},
		{"https://example.com:443", "https://example.com", false},
		{"https://example.com:8443/a", "https://example.com:8443", false},
		{"http://localhost:3000/app", "http://localhost:3000", false},
		{"https://bücher.example/", "https://xn--bcher-kva.example", false},
		{"ftp://example.com/file", "", true},
		{"/relative/path", "", true},
		{"mailto:someone@example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Origin(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Origin(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Origin(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Checker Tests
// =============================================================================

func TestNewChecker_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		rules  Rules
	}{
		{"bad target", "not a url", Rules{}},
		{"bad include", "https://example.com", Rules{IncludePatterns: []string{`[invalid`}}},
		{"bad exclude", "https://example.com", Rules{ExcludePatterns: []string{`[invalid`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewChecker(tt.target, tt.rules); err == nil {
				t.Error("NewChecker should fail")
			}
		})
	}
}

func TestChecker_IsInScope(t *testing.T) {
	rules := Rules{MaxDepth: 2, SkipAssets: true}.WithDefaultExcludes()
	rules.ExcludeGlobs = []string{"/admin/**"}
	c, err := NewChecker("https://example.com/", rules)
	if err != nil {
		t.Fatalf("NewChecker error = %v", err)
	}

	tests := []struct {
		name  string
		url   string
		depth int
		want  bool
	}{
		{"root", "https://example.com", 0, true},
		{"page", "https://example.com/about", 1, true},
		{"max depth", "https://example.com/about", 2, true},
		{"too deep", "https://example.com/about", 3, false},
		{"other host", "https://other.com/x", 1, false},
		{"subdomain", "https://www.example.com/x", 1, false},
		{"other scheme", "http://example.com/about", 1, false},
		{"explicit default port", "https://example.com:443/about", 1, true},
		{"logout", "https://example.com/logout", 1, false},
		{"logout query", "https://example.com/x?logout=1", 1, false},
		{"admin glob", "https://example.com/admin/users/1", 1, false},
		{"asset", "https://example.com/files/report.pdf", 1, false},
		{"image", "https://example.com/logo.PNG", 1, false},
		{"garbage", "::::", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsInScope(tt.url, tt.depth); got != tt.want {
				t.Errorf("IsInScope(%q, %d) = %v, want %v", tt.url, tt.depth, got, tt.want)
			}
		})
	}
}

func TestChecker_IncludePatterns(t *testing.T) {
	c, err := NewChecker("https://example.com", Rules{
		MaxDepth:        -1,
		IncludePatterns: []string{`/docs/`},
	})
	if err != nil {
		t.Fatalf("NewChecker error = %v", err)
	}

	if !c.IsInScope("https://example.com/docs/intro", 50) {
		t.Error("included URL should be in scope at any depth")
	}
	if c.IsInScope("https://example.com/blog", 0) {
		t.Error("URL not matching include should be out of scope")
	}
}

func TestChecker_MaxDepthZero(t *testing.T) {
	c, _ := NewChecker("https://example.com", Rules{MaxDepth: 0})

	if !c.IsInScope("https://example.com", 0) {
		t.Error("depth 0 should be in scope at max depth 0")
	}
	if c.IsInScope("https://example.com/a", 1) {
		t.Error("depth 1 should be out of scope at max depth 0")
	}
}

func TestChecker_CanonicalOrigin(t *testing.T) {
	c, _ := NewChecker("https://Example.com:443/start", Rules{MaxDepth: -1})

	if !c.IsInScope("https://example.com/x", 1) {
		t.Error("same host should match")
	}
	if c.IsInScope("https://example.com.evil.net/x", 1) {
		t.Error("prefix-sharing host should not match")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestIsAsset(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/about", false},
		{"/", false},
		{"/static/app.js", true},
		{"/img/hero.webp", true},
		{"/downloads/setup.EXE", true},
		{"/docs.html", false},
	}

	for _, tt := range tests {
		if got := IsAsset(tt.path); got != tt.want {
			t.Errorf("IsAsset(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRules_WithDefaultExcludes(t *testing.T) {
	custom := Rules{ExcludePatterns: []string{"private"}}
	extended := custom.WithDefaultExcludes()
	if len(extended.ExcludePatterns) != 1+len(DefaultExcludePatterns) {
		t.Errorf("ExcludePatterns = %v", extended.ExcludePatterns)
	}
	if len(custom.ExcludePatterns) != 1 {
		t.Error("WithDefaultExcludes should not modify the receiver")
	}
}
