package scrape

import (
	"strings"
	"testing"
)

func strp(s string) *string { return &s }

func TestNormalizeItemsCapsAtFive(t *testing.T) {
	items := make([]ResultItem, 9)
	for i := range items {
		items[i] = ResultItem{Title: "Case v. State"}
	}
	got := normalizeItems(items)
	if len(got) != 5 {
		t.Fatalf("expected cap at 5, got %d", len(got))
	}
}

func TestNormalizeItemsTitleFallback(t *testing.T) {
	got := normalizeItems([]ResultItem{
		{Title: "  ", URL: nil, Citation: "410 U.S. 113", Summary: "410 U.S. 113"},
		{Title: "Marbury v. Madison", URL: strp("https://portal/opinion/1/")},
	})
	if got[0].Title != "Unknown Title" {
		t.Fatalf("expected fallback title, got %q", got[0].Title)
	}
	if got[0].URL != nil {
		t.Fatalf("fallback row keeps its null URL")
	}
	if got[1].Title != "Marbury v. Madison" {
		t.Fatalf("real title must survive normalization, got %q", got[1].Title)
	}
}

func TestNormalizeItemsNilBecomesEmpty(t *testing.T) {
	got := normalizeItems(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestDirectMatchItemShape(t *testing.T) {
	items := directMatchItem("Brown v. Board of Education", "https://portal/opinion/1/")
	if len(items) != 1 {
		t.Fatalf("expected exactly one synthetic item, got %d", len(items))
	}
	it := items[0]
	if it.Summary != "Direct Citation Match" {
		t.Fatalf("unexpected summary %q", it.Summary)
	}
	if it.Citation != "" {
		t.Fatalf("citation must stay empty, got %q", it.Citation)
	}
	if it.URL == nil || *it.URL != "https://portal/opinion/1/" {
		t.Fatalf("landing URL must be carried, got %v", it.URL)
	}
	if it.Title != "Brown v. Board of Education" {
		t.Fatalf("unexpected title %q", it.Title)
	}
}

func TestDirectMatchItemTitleFallback(t *testing.T) {
	items := directMatchItem("", "https://portal/opinion/2/")
	if len(items) != 1 || items[0].Title != "Unknown Title" {
		t.Fatalf("expected fallback title for a blank page title, got %+v", items)
	}
}

func TestIsDocumentView(t *testing.T) {
	cases := []struct {
		href string
		want bool
	}{
		{"https://portal.example.com/opinion/12345/brown-v-board/", true},
		{"https://portal.example.com/?q=brown", false},
		{"https://portal.example.com/c/results?vol=347", false},
		{"https://portal.example.com/search?next=/opinion/1/", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isDocumentView(tc.href, "/opinion/"); got != tc.want {
			t.Fatalf("isDocumentView(%q) = %v, want %v", tc.href, got, tc.want)
		}
	}
}

func TestRecoverTextStripsMarkup(t *testing.T) {
	html := `<div id="opinion-content"><h1>Brown v. Board</h1><script>track()</script><p>Separate is not equal.</p></div>`
	text := recoverText(html)
	if !strings.Contains(text, "Separate is not equal.") {
		t.Fatalf("expected body text, got %q", text)
	}
	if strings.Contains(text, "track()") {
		t.Fatalf("script content must be stripped, got %q", text)
	}
}

func TestFinalizeDocumentRecoversTextFromHTML(t *testing.T) {
	raw := docExtraction{
		Title: "Brown v. Board",
		Text:  "",
		HTML:  `<article><p>The doctrine of separate but equal has no place.</p></article>`,
	}
	doc := finalizeDocument(raw, "", "https://portal/opinion/1/")
	if !strings.Contains(doc.Text, "separate but equal") {
		t.Fatalf("expected text recovered from container markup, got %q", doc.Text)
	}
	if doc.Title != "Brown v. Board" {
		t.Fatalf("title changed: %q", doc.Title)
	}
}

func TestFinalizeDocumentReadabilityLastResort(t *testing.T) {
	pageHTML := `<html><head><title>Plessy v. Ferguson</title></head><body>
		<article><h1>Plessy v. Ferguson</h1>
		<p>` + strings.Repeat("The object of the amendment was undoubtedly to enforce the absolute equality of the two races before the law. ", 10) + `</p>
		</article></body></html>`
	doc := finalizeDocument(docExtraction{}, pageHTML, "https://portal/opinion/2/")
	if doc.Text == "" {
		t.Fatalf("expected readability fallback to produce text")
	}
	if doc.HTML == "" {
		t.Fatalf("expected page markup to back-fill html")
	}
}

func TestListScriptEmbedsSelectorsAndCap(t *testing.T) {
	sel := testSelectors()
	script := listScript(sel)
	for _, want := range []string{`"article.search-result"`, `"h3 a"`, `"p.summary"`, `".no-results"`, "slice(0, 5)", `"Unknown Title"`} {
		if !strings.Contains(script, want) {
			t.Fatalf("list script missing %s:\n%s", want, script)
		}
	}
}

func TestDocScriptFallbackOrder(t *testing.T) {
	sel := testSelectors()
	script := docScript(sel)
	primary := strings.Index(script, `"#opinion-content"`)
	frame := strings.Index(script, `".opinion-text"`)
	body := strings.Index(script, `"body"`)
	if primary < 0 || frame < 0 || body < 0 {
		t.Fatalf("doc script missing candidates:\n%s", script)
	}
	if !(primary < frame && frame < body) {
		t.Fatalf("candidates out of order: primary=%d frame=%d body=%d", primary, frame, body)
	}
}
