package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
	"github.com/PentesterFlow/SiteMapper/internal/framework"
)

// SourceKind tags where a candidate link came from.
type SourceKind int

const (
	Anchor SourceKind = iota
	DataAttribute
	OnClick
	ScriptLiteral
	RouterAttribute
)

func (k SourceKind) String() string {
	switch k {
	case Anchor:
		return "anchor"
	case DataAttribute:
		return "data-attribute"
	case OnClick:
		return "onclick"
	case ScriptLiteral:
		return "script-literal"
	case RouterAttribute:
		return "router-attribute"
	default:
		return "unknown"
	}
}

// Candidate is a raw link string before normalization.
type Candidate struct {
	Raw  string
	Kind SourceKind
}

// Source produces candidates from a rendered page. Unreliable sources are
// heuristics whose failures are only worth a debug line.
type Source interface {
	Kind() SourceKind
	Reliable() bool
	Collect(ctx context.Context, in *Input) ([]Candidate, error)
}

// Input is the page being harvested. The rendered HTML is fetched and
// parsed at most once, on first use.
type Input struct {
	Page browser.Page

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

// NewInput wraps page for a single extraction pass.
func NewInput(page browser.Page) *Input {
	return &Input{Page: page}
}

// Document returns the parsed rendered HTML.
func (in *Input) Document(ctx context.Context) (*goquery.Document, error) {
	in.once.Do(func() {
		content, err := in.Page.HTML(ctx)
		if err != nil {
			in.docErr = fmt.Errorf("read rendered html: %w", err)
			return
		}
		in.doc, in.docErr = ParseHTML(content)
	})
	return in.doc, in.docErr
}

// ParseHTML parses an HTML document for goquery.
func ParseHTML(content string) (*goquery.Document, error) {
	node, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(node), nil
}

const anchorScript = `() => Array.from(document.querySelectorAll('a[href]'))
	.map(el => (el.getAttribute('href') || '').trim())`

const dataAttributeScript = `() => {
	const attrs = ['data-href', 'data-to', 'data-url', 'data-link'];
	const out = [];
	document.querySelectorAll(attrs.map(a => '[' + a + ']').join(', ')).forEach(el => {
		for (const a of attrs) {
			const v = el.getAttribute(a);
			if (v) out.push(v.trim());
		}
	});
	return out;
}`

// evalSource collects strings returned by a page script.
type evalSource struct {
	kind     SourceKind
	reliable bool
	script   string
}

func (s *evalSource) Kind() SourceKind { return s.kind }
func (s *evalSource) Reliable() bool   { return s.reliable }

func (s *evalSource) Collect(ctx context.Context, in *Input) ([]Candidate, error) {
	var raw []string
	if err := in.Page.Eval(ctx, s.script, &raw); err != nil {
		return nil, err
	}
	return tag(raw, s.kind), nil
}

// htmlSource scans the parsed rendered HTML.
type htmlSource struct {
	kind     SourceKind
	reliable bool
	scan     func(doc *goquery.Document) []string
}

func (s *htmlSource) Kind() SourceKind { return s.kind }
func (s *htmlSource) Reliable() bool   { return s.reliable }

func (s *htmlSource) Collect(ctx context.Context, in *Input) ([]Candidate, error) {
	doc, err := in.Document(ctx)
	if err != nil {
		return nil, err
	}
	return tag(s.scan(doc), s.kind), nil
}

func tag(raw []string, kind SourceKind) []Candidate {
	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		out = append(out, Candidate{Raw: r, Kind: kind})
	}
	return out
}

// AnchorSource reads a[href] attributes.
func AnchorSource() Source {
	return &evalSource{kind: Anchor, reliable: true, script: anchorScript}
}

// DataAttributeSource reads data-href, data-to, data-url and data-link.
func DataAttributeSource() Source {
	return &evalSource{kind: DataAttribute, reliable: true, script: dataAttributeScript}
}

// OnClickSource scans onclick handlers inside navigation for quoted paths.
func OnClickSource() Source {
	return &htmlSource{kind: OnClick, scan: ScanOnClick}
}

// ScriptLiteralSource scans inline scripts for route-looking paths.
func ScriptLiteralSource() Source {
	return &htmlSource{kind: ScriptLiteral, scan: ScanScripts}
}

// RouterAttributeSource reads the attributes client-side routers render.
func RouterAttributeSource() Source {
	return &htmlSource{kind: RouterAttribute, scan: ScanRouterAttributes}
}

// DefaultSources returns every source in harvest order.
func DefaultSources(onClick bool) []Source {
	sources := []Source{AnchorSource(), DataAttributeSource()}
	if onClick {
		sources = append(sources, OnClickSource())
	}
	return append(sources, ScriptLiteralSource(), RouterAttributeSource())
}

var (
	quotedPathRe = regexp.MustCompile(`['"](/[A-Za-z0-9\-_/]*)['"]`)
	routePathRe  = regexp.MustCompile(`path:\s*['"](/[A-Za-z0-9\-_/]*)['"]`)
	toPropRe     = regexp.MustCompile(`to=["'](/[A-Za-z0-9\-_/]*)["']`)
	onClickRe    = regexp.MustCompile(`['"](/[^'"]*)['"]`)

	scriptPatterns = []*regexp.Regexp{quotedPathRe, routePathRe, toPropRe}
)

// ScanScripts returns path literals found in inline script text.
func ScanScripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		text := s.Text()
		for _, re := range scriptPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				if len(m[1]) > 1 {
					out = append(out, m[1])
				}
			}
		}
	})
	return out
}

// ScanOnClick returns the first quoted path of each navigation onclick.
func ScanOnClick(doc *goquery.Document) []string {
	var out []string
	doc.Find("nav [onclick], .nav [onclick], .menu [onclick]").Each(func(_ int, s *goquery.Selection) {
		handler, _ := s.Attr("onclick")
		if m := onClickRe.FindStringSubmatch(handler); m != nil {
			out = append(out, m[1])
		}
	})
	return out
}

// ScanRouterAttributes returns link targets held in router attributes.
func ScanRouterAttributes(doc *goquery.Document) []string {
	var out []string
	for _, ra := range framework.RouterAttributes() {
		doc.Find(ra.Selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(ra.Attr); ok {
				out = append(out, strings.TrimSpace(v))
			}
		})
	}
	return out
}

// usable filters raw strings that can never be a page link.
func usable(raw string) bool {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	lower := strings.ToLower(raw)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}
