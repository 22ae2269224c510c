package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
)

const (
	// NoTitle is used when a page offers nothing to call a title.
	NoTitle = "No title found"
	// DefaultContentThreshold is the body text length a page must exceed
	// to count as having content.
	DefaultContentThreshold = 100

	descriptionLimit = 160
)

// Metadata is what a sitemap record says about a page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	HasContent  bool   `json:"hasContent"`
}

// DefaultMetadata is used when neither the page script nor the HTML
// fallback can be read.
func DefaultMetadata() Metadata {
	return Metadata{Title: NoTitle}
}

const metadataScript = `(threshold) => {
	const text = sel => {
		const el = document.querySelector(sel);
		return (el && el.textContent) || '';
	};
	const content = sel => {
		const el = document.querySelector(sel);
		return (el && el.getAttribute('content')) || '';
	};
	const title = document.title ||
		text('h1') ||
		text('[data-testid="title"]') ||
		text('.title') ||
		'No title found';
	const description = content('meta[name="description"]') ||
		content('meta[property="og:description"]') ||
		text('.description') ||
		text('p').substring(0, 160) ||
		'';
	const body = document.body ? (document.body.innerText || '').trim() : '';
	return {
		title: title.trim(),
		description: description.trim(),
		hasContent: body.length > threshold
	};
}`

// ReadMetadata evaluates the metadata chain in the page. When the script
// fails the same chain is applied to the rendered HTML.
func ReadMetadata(ctx context.Context, page browser.Page, threshold int) (Metadata, error) {
	var md Metadata
	err := page.Eval(ctx, metadataScript, &md, threshold)
	if err == nil {
		if md.Title == "" && md.Description == "" && !md.HasContent {
			// The script ran but returned nothing usable.
			md.Title = NoTitle
		}
		return md, nil
	}

	content, htmlErr := page.HTML(ctx)
	if htmlErr != nil {
		return DefaultMetadata(), err
	}
	doc, parseErr := ParseHTML(content)
	if parseErr != nil {
		return DefaultMetadata(), err
	}
	return MetadataFromDocument(doc, threshold), nil
}

// MetadataFromDocument applies the title and description chains with
// goquery.
func MetadataFromDocument(doc *goquery.Document, threshold int) Metadata {
	text := func(sel string) string {
		return doc.Find(sel).First().Text()
	}
	content := func(sel string) string {
		v, _ := doc.Find(sel).First().Attr("content")
		return v
	}

	title := firstNonEmpty(
		text("title"),
		text("h1"),
		text(`[data-testid="title"]`),
		text(".title"),
		NoTitle,
	)
	description := firstNonEmpty(
		content(`meta[name="description"]`),
		content(`meta[property="og:description"]`),
		text(".description"),
		truncateRunes(text("p"), descriptionLimit),
	)

	body := doc.Find("body").First().Clone()
	body.Find("script, style, noscript, template").Remove()
	bodyText := strings.TrimSpace(body.Text())

	return Metadata{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		HasContent:  utf8.RuneCountInString(bodyText) > threshold,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
