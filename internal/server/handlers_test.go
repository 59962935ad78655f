package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"caselaw-proxy/internal/scrape"
)

type scraperStub struct {
	searchCalls   int
	citationCalls int
	readCalls     int

	items []scrape.ResultItem
	doc   scrape.DocumentContent
	err   error

	gotQuery    string
	gotCitation [3]string
	gotURL      string
}

func (s *scraperStub) Search(ctx context.Context, query string) ([]scrape.ResultItem, error) {
	s.searchCalls++
	s.gotQuery = query
	return s.items, s.err
}

func (s *scraperStub) SearchCitation(ctx context.Context, volume, reporter, page string) ([]scrape.ResultItem, error) {
	s.citationCalls++
	s.gotCitation = [3]string{volume, reporter, page}
	return s.items, s.err
}

func (s *scraperStub) Read(ctx context.Context, docURL string) (scrape.DocumentContent, error) {
	s.readCalls++
	s.gotURL = docURL
	return s.doc, s.err
}

func newTestHandler(stub *scraperStub) *Handler {
	return &Handler{
		Scraper: stub,
		Service: "caselaw-proxy",
		Logger:  log.New(log.Writer(), "[TEST] ", 0),
	}
}

func newContext(t *testing.T, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func strp(s string) *string { return &s }

func TestHealthShape(t *testing.T) {
	h := newTestHandler(&scraperStub{})
	c, rec := newContext(t, "/health")

	if err := h.health(c); err != nil {
		t.Fatalf("health: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "caselaw-proxy" || body["authenticated"] != false {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestSearchMissingQueryRejectedBeforeSession(t *testing.T) {
	stub := &scraperStub{}
	h := newTestHandler(stub)

	for _, target := range []string{"/search", "/search?q=", "/search?q=%20"} {
		c, _ := newContext(t, target)
		err := h.search(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 http error, got %#v", target, err)
		}
	}
	if stub.searchCalls != 0 {
		t.Fatalf("no browser session may be created on validation failure, got %d calls", stub.searchCalls)
	}
}

func TestSearchSuccessEnvelope(t *testing.T) {
	stub := &scraperStub{items: []scrape.ResultItem{
		{Title: "Brown v. Board of Education", URL: strp("https://portal/opinion/1/"), Citation: "347 U.S. 483", Summary: "347 U.S. 483"},
		{Title: "Unknown Title", URL: nil},
	}}
	h := newTestHandler(stub)
	c, rec := newContext(t, "/search?q=segregation")

	if err := h.search(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	if stub.gotQuery != "segregation" {
		t.Fatalf("query not forwarded, got %q", stub.gotQuery)
	}
	var body struct {
		Results []scrape.ResultItem `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(body.Results))
	}
	if body.Results[1].Title != "Unknown Title" || body.Results[1].URL != nil {
		t.Fatalf("fallback item mangled: %+v", body.Results[1])
	}
}

func TestSearchFailureMapsTo500(t *testing.T) {
	stub := &scraperStub{err: errors.New("search pipeline: submit search: context deadline exceeded")}
	h := newTestHandler(stub)
	c, _ := newContext(t, "/search?q=estoppel")

	err := h.search(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 http error, got %#v", err)
	}
}

func TestSearchCitationRequiresAllParams(t *testing.T) {
	stub := &scraperStub{}
	h := newTestHandler(stub)

	for _, target := range []string{
		"/search-citation",
		"/search-citation?vol=347",
		"/search-citation?vol=347&reporter=U.S.",
		"/search-citation?vol=347&page=483",
	} {
		c, _ := newContext(t, target)
		err := h.searchCitation(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %#v", target, err)
		}
	}
	if stub.citationCalls != 0 {
		t.Fatalf("scraper called on invalid input")
	}

	c, _ := newContext(t, "/search-citation?vol=347&reporter=U.S.&page=483")
	if err := h.searchCitation(c); err != nil {
		t.Fatalf("valid citation search: %v", err)
	}
	if stub.gotCitation != [3]string{"347", "U.S.", "483"} {
		t.Fatalf("params not forwarded: %v", stub.gotCitation)
	}
}

func TestReadSuccessShape(t *testing.T) {
	stub := &scraperStub{doc: scrape.DocumentContent{
		Title: "Brown v. Board of Education",
		Text:  "Separate educational facilities are inherently unequal.",
		HTML:  "<article>...</article>",
	}}
	h := newTestHandler(stub)
	c, rec := newContext(t, "/read?url=https%3A%2F%2Fportal%2Fopinion%2F1%2F")

	if err := h.read(c); err != nil {
		t.Fatalf("read: %v", err)
	}
	var body scrape.DocumentContent
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Title == "" || body.Text == "" || body.HTML == "" {
		t.Fatalf("incomplete document body: %+v", body)
	}
	if stub.gotURL != "https://portal/opinion/1/" {
		t.Fatalf("url not forwarded, got %q", stub.gotURL)
	}
}

func TestReadMissingURL(t *testing.T) {
	stub := &scraperStub{}
	h := newTestHandler(stub)
	c, _ := newContext(t, "/read")

	err := h.read(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
	if stub.readCalls != 0 {
		t.Fatalf("scraper called on invalid input")
	}
}
