// Package scope decides which URLs belong to a crawl: same origin as the
// target, within the depth bound, and not excluded by rules.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/idna"
)

// Checker validates URLs against scope rules.
type Checker struct {
	rules          Rules
	origin         string
	includeRegexps []*regexp.Regexp
	excludeRegexps []*regexp.Regexp
	excludeGlobs   []glob.Glob
}

// NewChecker creates a new scope checker for the target's origin.
func NewChecker(targetURL string, rules Rules) (*Checker, error) {
	origin, err := Origin(targetURL)
	if err != nil {
		return nil, err
	}

	c := &Checker{
		rules:  rules,
		origin: origin,
	}

	for _, pattern := range rules.IncludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		c.includeRegexps = append(c.includeRegexps, re)
	}

	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		c.excludeRegexps = append(c.excludeRegexps, re)
	}

	for _, pattern := range rules.ExcludeGlobs {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude glob %q: %w", pattern, err)
		}
		c.excludeGlobs = append(c.excludeGlobs, g)
	}

	return c, nil
}

// IsInScope checks depth, origin and the include/exclude rules.
func (c *Checker) IsInScope(urlStr string, depth int) bool {
	if c.rules.MaxDepth >= 0 && depth > c.rules.MaxDepth {
		return false
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if origin, err := originOf(parsed); err != nil || origin != c.origin {
		return false
	}

	if c.rules.SkipAssets && IsAsset(parsed.Path) {
		return false
	}

	for _, re := range c.excludeRegexps {
		if re.MatchString(urlStr) {
			return false
		}
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, g := range c.excludeGlobs {
		if g.Match(path) {
			return false
		}
	}

	if len(c.includeRegexps) > 0 {
		for _, re := range c.includeRegexps {
			if re.MatchString(urlStr) {
				return true
			}
		}
		return false
	}

	return true
}

// Origin returns the scheme://host of an absolute http(s) URL with the
// host lower-cased, IDNA-encoded and stripped of its default port.
func Origin(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return originOf(parsed)
}

func originOf(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", u.String())
	}
	return scheme + "://" + CanonicalHost(scheme, u.Host), nil
}

// CanonicalHost normalizes a host[:port] for origin comparison.
func CanonicalHost(scheme, host string) string {
	u := &url.URL{Host: host}
	hostname, port := u.Hostname(), u.Port()

	if ascii, err := idna.Lookup.ToASCII(hostname); err == nil {
		hostname = ascii
	} else {
		hostname = strings.ToLower(hostname)
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return hostname + ":" + port
	}
	return hostname
}

var assetExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".webp",
	".css", ".js", ".map", ".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".zip", ".tar", ".gz", ".rar", ".exe", ".dmg",
	".mp3", ".mp4", ".wav", ".avi", ".mov",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// IsAsset reports whether a path points at a non-page resource.
func IsAsset(path string) bool {
	path = strings.ToLower(path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
