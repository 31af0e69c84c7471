package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/pinterest-pipeline/internal/browser"
)

// pinCardSelectors is tried in order until one matches; the results grid
// markup varies between page experiments.
var pinCardSelectors = []string{
	`[data-test-id="pin"]`,
	`div[role="listitem"]`,
	`[class*="pin"]`,
}

// pageSource is the production ContentSource backed by a playwright page.
type pageSource struct {
	browser    *browser.Browser
	page       playwright.Page
	settle     time.Duration
	lastHeight int
	logger     *slog.Logger
}

func newPageSource(b *browser.Browser, opts *Options, query string) (*pageSource, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	searchURL := opts.SearchBaseURL + "?" + url.Values{"q": {query}}.Encode()
	if err := b.NavigateWithRetry(page, searchURL, opts.NavRetries); err != nil {
		page.Close()
		return nil, err
	}

	// Give the initial grid a moment to render before the first extraction.
	time.Sleep(opts.RevealDelay)

	src := &pageSource{
		browser: b,
		page:    page,
		settle:  opts.RevealDelay,
		logger:  slog.Default().With("component", "page_source"),
	}

	if h, err := b.PageHeight(page); err == nil {
		src.lastHeight = h
	}

	return src, nil
}

func (p *pageSource) Items(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, selector := range pinCardSelectors {
		count, err := p.page.Locator(selector).Count()
		if err != nil || count == 0 {
			continue
		}

		result, err := p.page.Locator(selector).EvaluateAll(`els => els.map(e => e.outerHTML)`, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read pin cards: %w", err)
		}

		raw, ok := result.([]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected pin card payload type %T", result)
		}

		htmls := make([]string, 0, len(raw))
		for _, item := range raw {
			if html, ok := item.(string); ok {
				htmls = append(htmls, html)
			}
		}

		p.logger.Debug("pin cards found", "selector", selector, "count", len(htmls))
		return htmls, nil
	}

	return nil, nil
}

func (p *pageSource) Reveal(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	height, err := p.browser.ScrollToBottom(p.page, p.settle)
	if err != nil {
		return false, err
	}

	grew := height != p.lastHeight
	p.lastHeight = height
	return grew, nil
}

func (p *pageSource) Close() error {
	return p.page.Close()
}
