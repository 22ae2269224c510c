package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"

	"github.com/PentesterFlow/SiteMapper/internal/scope"
)

// QueryPolicy controls what happens to query strings during normalization.
type QueryPolicy string

const (
	// QueryStrip drops the query so ?page=2 and ?page=3 collapse to one URL.
	QueryStrip QueryPolicy = "strip"
	// QueryKeep keeps the query with its parameters sorted.
	QueryKeep QueryPolicy = "keep"
)

// ErrUnsupportedScheme is returned for anything but http and https.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Normalizer turns raw link strings into canonical URLs. Canonical form
// has a lower-case scheme, an IDNA host without a default port, no
// fragment, no trailing slash on the path and a query handled by policy.
type Normalizer struct {
	Query QueryPolicy
}

// NewNormalizer creates a normalizer. An empty policy strips queries.
func NewNormalizer(policy QueryPolicy) *Normalizer {
	if policy == "" {
		policy = QueryStrip
	}
	return &Normalizer{Query: policy}
}

// Canonical normalizes an absolute URL.
func (n *Normalizer) Canonical(raw string) (string, error) {
	u, err := urlParser.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	return n.finish(u.Href(true))
}

// Resolve resolves ref against base and normalizes the result.
func (n *Normalizer) Resolve(base, ref string) (string, error) {
	if base == "" {
		return n.Canonical(ref)
	}
	u, err := urlParser.ParseRef(base, strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("resolve %q against %q: %w", ref, base, err)
	}
	return n.finish(u.Href(true))
}

func (n *Normalizer) finish(href string) (string, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w %q", ErrUnsupportedScheme, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", href)
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(scope.CanonicalHost(scheme, parsed.Host))
	b.WriteString(strings.TrimRight(parsed.EscapedPath(), "/"))

	if n.Query == QueryKeep && parsed.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(parsed.Query().Encode())
	}
	return b.String(), nil
}

// SameOrigin reports whether canonical belongs to origin.
func SameOrigin(canonical, origin string) bool {
	o, err := scope.Origin(canonical)
	return err == nil && o == origin
}
