package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"caselaw-proxy/internal/gate"
	"caselaw-proxy/internal/scrape"
)

// Scraper is what the handlers need from the pipeline; the indirection keeps
// them testable without a browser.
type Scraper interface {
	Search(ctx context.Context, query string) ([]scrape.ResultItem, error)
	SearchCitation(ctx context.Context, volume, reporter, page string) ([]scrape.ResultItem, error)
	Read(ctx context.Context, docURL string) (scrape.DocumentContent, error)
}

// Handler exposes the proxy's HTTP surface.
type Handler struct {
	Scraper Scraper
	Service string
	Logger  *log.Logger
}

// Register wires the routes. The health route bypasses authentication but
// stays behind the rate limit; every scrape route sits behind both.
func (h *Handler) Register(e *echo.Echo, g *gate.Gate) {
	e.GET("/health", h.health, g.RateLimit())

	gated := []echo.MiddlewareFunc{g.APIKeyAuth(), g.RateLimit()}
	e.GET("/search", h.search, gated...)
	e.GET("/search-citation", h.searchCitation, gated...)
	e.GET("/read", h.read, gated...)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":        "ok",
		"service":       h.Service,
		"authenticated": false,
	})
}

func (h *Handler) search(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required parameter: q")
	}

	items, err := h.Scraper.Search(h.scrapeContext(c), query)
	if err != nil {
		h.Logger.Printf("search %q failed: %v", query, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"results": items})
}

func (h *Handler) searchCitation(c echo.Context) error {
	volume := strings.TrimSpace(c.QueryParam("vol"))
	reporter := strings.TrimSpace(c.QueryParam("reporter"))
	page := strings.TrimSpace(c.QueryParam("page"))
	if volume == "" || reporter == "" || page == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required parameters: vol, reporter, page")
	}

	items, err := h.Scraper.SearchCitation(h.scrapeContext(c), volume, reporter, page)
	if err != nil {
		h.Logger.Printf("citation search %s %s %s failed: %v", volume, reporter, page, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// An empty list here means either confirmed zero matches or a selector
	// mismatch after a portal markup change; the two are not distinguishable.
	return c.JSON(http.StatusOK, echo.Map{"results": items})
}

func (h *Handler) read(c echo.Context) error {
	docURL := strings.TrimSpace(c.QueryParam("url"))
	if docURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required parameter: url")
	}

	doc, err := h.Scraper.Read(h.scrapeContext(c), docURL)
	if err != nil {
		h.Logger.Printf("read %s failed: %v", docURL, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

// scrapeContext deliberately detaches the pipeline from the request context:
// a caller disconnecting does not abort an in-flight browser session, which
// runs to completion or timeout before cleanup.
func (h *Handler) scrapeContext(echo.Context) context.Context {
	return context.Background()
}
