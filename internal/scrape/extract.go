package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	maxResults   = 5
	unknownTitle = "Unknown Title"
)

// normalizeItems re-applies the result cap and the title fallback server-side
// so the contract holds even if the page script returned more or less than it
// should have. A nil slice becomes an empty one so the JSON is always a list.
func normalizeItems(items []ResultItem) []ResultItem {
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	for i := range items {
		if strings.TrimSpace(items[i].Title) == "" {
			items[i].Title = unknownTitle
		}
	}
	if items == nil {
		items = []ResultItem{}
	}
	return items
}

// directMatchItem builds the single synthetic result for a citation search
// that landed straight on a document view. The page title is subject to the
// usual fallback; the citation stays empty because the landing page carries
// none in list form.
func directMatchItem(title, href string) []ResultItem {
	u := href
	return normalizeItems([]ResultItem{{Title: title, URL: &u, Summary: directMatchSummary}})
}

// isDocumentView reports whether href denotes a direct document view rather
// than a result list, by matching the configured document path against the
// URL path.
func isDocumentView(href, documentPath string) bool {
	if href == "" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return strings.Contains(href, documentPath)
	}
	return strings.Contains(u.Path, documentPath)
}

// recoverText derives visible text from extracted container markup when the
// in-page innerText came back blank (detached frames do that).
func recoverText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}

// finalizeDocument applies the fallback chain to a raw document extraction:
// recover text from the container markup when innerText came back blank, and
// fall back to readability over the whole captured page when no container
// yielded anything.
func finalizeDocument(raw docExtraction, pageHTML, pageURL string) DocumentContent {
	doc := DocumentContent{
		Title: strings.TrimSpace(raw.Title),
		Text:  strings.TrimSpace(raw.Text),
		HTML:  raw.HTML,
	}
	if doc.Text == "" && doc.HTML != "" {
		doc.Text = recoverText(doc.HTML)
	}
	if doc.Text == "" && pageHTML != "" {
		title, text := readabilityFallback(pageHTML, pageURL)
		if doc.Title == "" {
			doc.Title = title
		}
		doc.Text = text
		if doc.HTML == "" {
			doc.HTML = pageHTML
		}
	}
	return doc
}

// readabilityFallback runs article extraction over the whole captured page as
// a last resort when no configured container yielded content.
func readabilityFallback(pageHTML, pageURL string) (title, text string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(pageHTML), u)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(article.Title), strings.TrimSpace(article.TextContent)
}
