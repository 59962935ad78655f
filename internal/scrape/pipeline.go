// Package scrape drives the headless browser through the portal's pages and
// projects the rendered DOM into structured results. Each endpoint is a
// linear sequence of steps; a step failure aborts the rest, the session is
// torn down by the manager regardless.
package scrape

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"caselaw-proxy/config"
)

// directMatchSummary marks a citation search that resolved straight to a
// document view instead of a result list.
const directMatchSummary = "Direct Citation Match"

var (
	scrapes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseproxy_scrapes_total",
		Help: "Completed scrape pipelines by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
	durations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caseproxy_scrape_duration_seconds",
		Help:    "Scrape pipeline duration by endpoint.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"endpoint"})
)

// SessionRunner supplies an isolated browser session per pipeline run.
type SessionRunner interface {
	WithSession(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pipeline executes the endpoint-specific step sequences.
type Pipeline struct {
	sessions SessionRunner
	browser  config.BrowserConfig
	portal   config.PortalConfig
	logger   *log.Logger
}

// New creates a Pipeline over the given session source.
func New(sessions SessionRunner, browserCfg config.BrowserConfig, portal config.PortalConfig, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCRAPE] ", log.LstdFlags)
	}
	return &Pipeline{sessions: sessions, browser: browserCfg, portal: portal, logger: logger}
}

// Search runs the case search for a free-text query and returns at most 5
// normalized result items.
func (p *Pipeline) Search(ctx context.Context, query string) (items []ResultItem, err error) {
	defer p.observe("search", time.Now(), &err)

	err = p.sessions.WithSession(ctx, func(ctx context.Context) error {
		sel := p.portal.Selectors
		if err := p.runStep(ctx, p.browser.NavTimeout, "navigate to search page",
			chromedp.Navigate(p.portal.SearchURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			awaitNetworkIdle(p.browser.NetworkQuiet),
		); err != nil {
			return err
		}
		if err := p.runStep(ctx, p.browser.InputTimeout, "wait for query input",
			chromedp.WaitReady(sel.QueryInput, chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runStep(ctx, p.browser.InputTimeout, "fill query",
			chromedp.SendKeys(sel.QueryInput, query, chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runNavStep(ctx, p.browser.SubmitTimeout, "submit search",
			chromedp.Click(sel.SearchSubmit, chromedp.ByQuery),
		); err != nil {
			return err
		}
		p.settle(ctx)

		var raw listExtraction
		if err := p.runStep(ctx, p.browser.SubmitTimeout, "extract results",
			chromedp.Evaluate(listScript(sel), &raw),
		); err != nil {
			return err
		}
		if len(raw.Items) == 0 && !raw.ConfirmedEmpty {
			// Indistinguishable from "confirmed zero matches" for the
			// caller; logged so markup drift is at least visible here.
			p.logger.Printf("search %q: empty result set without no-results marker", query)
		}
		items = normalizeItems(raw.Items)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search pipeline: %w", err)
	}
	return items, nil
}

// SearchCitation looks up a citation by volume, reporter, and page. A
// post-submit URL on the document path yields a single synthetic item; any
// other landing page goes through the shared list extraction.
func (p *Pipeline) SearchCitation(ctx context.Context, volume, reporter, page string) (items []ResultItem, err error) {
	defer p.observe("search_citation", time.Now(), &err)

	err = p.sessions.WithSession(ctx, func(ctx context.Context) error {
		sel := p.portal.Selectors
		if err := p.runStep(ctx, p.browser.NavTimeout, "navigate to citation page",
			chromedp.Navigate(p.portal.CitationURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runStep(ctx, p.browser.VolumeTimeout, "wait for volume input",
			chromedp.WaitReady(sel.VolumeInput, chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runStep(ctx, p.browser.VolumeTimeout, "fill citation form",
			chromedp.SendKeys(sel.VolumeInput, volume, chromedp.ByQuery),
			chromedp.SetValue(sel.ReporterSelect, reporter, chromedp.ByQuery),
			chromedp.SendKeys(sel.PageInput, page, chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runNavStep(ctx, p.browser.SubmitTimeout, "submit citation",
			chromedp.Click(sel.CitationSubmit, chromedp.ByQuery),
		); err != nil {
			return err
		}
		p.settle(ctx)

		var href, title string
		if err := p.runStep(ctx, p.browser.VolumeTimeout, "read landing location",
			chromedp.Location(&href),
			chromedp.Title(&title),
		); err != nil {
			return err
		}
		if isDocumentView(href, p.portal.DocumentPath) {
			items = directMatchItem(title, href)
			return nil
		}

		var raw listExtraction
		if err := p.runStep(ctx, p.browser.SubmitTimeout, "extract results",
			chromedp.Evaluate(listScript(sel), &raw),
		); err != nil {
			return err
		}
		items = normalizeItems(raw.Items)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("citation pipeline: %w", err)
	}
	return items, nil
}

// Read navigates to an arbitrary document URL and returns its title, visible
// text, and raw markup. The content wait is best-effort: on timeout the
// extraction proceeds against whatever loaded.
func (p *Pipeline) Read(ctx context.Context, docURL string) (doc DocumentContent, err error) {
	defer p.observe("read", time.Now(), &err)

	err = p.sessions.WithSession(ctx, func(ctx context.Context) error {
		sel := p.portal.Selectors
		if err := p.runStep(ctx, p.browser.ReadNavTimeout, "navigate to document",
			chromedp.Navigate(docURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return err
		}
		if err := p.runStep(ctx, p.browser.ContentTimeout, "wait for content body",
			chromedp.WaitReady(sel.ContentBody, chromedp.ByQuery),
		); err != nil {
			p.logger.Printf("read %s: content wait failed, extracting what loaded: %v", docURL, err)
		}

		var raw docExtraction
		var pageHTML string
		if err := p.runStep(ctx, p.browser.ContentTimeout, "extract document",
			chromedp.Evaluate(docScript(sel), &raw),
			chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
		); err != nil {
			return err
		}
		doc = finalizeDocument(raw, pageHTML, docURL)
		return nil
	})
	if err != nil {
		return DocumentContent{}, fmt.Errorf("read pipeline: %w", err)
	}
	return doc, nil
}

// runStep executes one pipeline step under its own timeout.
func (p *Pipeline) runStep(ctx context.Context, timeout time.Duration, step string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// runNavStep executes a step that triggers a navigation. RunResponse arms the
// load wait before the actions fire, so the step does not resolve against the
// pre-navigation document on a slow portal.
func (p *Pipeline) runNavStep(ctx context.Context, timeout time.Duration, step string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := chromedp.RunResponse(stepCtx, actions...); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// settle waits out the fixed delay that stands in for a rendering readiness
// signal the portal does not provide.
func (p *Pipeline) settle(ctx context.Context) {
	select {
	case <-time.After(p.browser.SettleDelay):
	case <-ctx.Done():
	}
}

func (p *Pipeline) observe(endpoint string, start time.Time, err *error) {
	outcome := "success"
	if *err != nil {
		outcome = "error"
	}
	scrapes.WithLabelValues(endpoint, outcome).Inc()
	durations.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
