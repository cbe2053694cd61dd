package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"semcrawl/pkg/types"
)

// RenderOptions configures the JavaScript rendering pipeline.
type RenderOptions struct {
	Timeout         time.Duration
	WaitForSelector string
	CaptureDelay    time.Duration
	MaxBodyBytes    int64
	DisableHeadless bool
}

// ChromedpRenderer executes headless Chrome sessions for pages whose
// content only exists after script execution.
type ChromedpRenderer struct {
	opts   RenderOptions
	logger *slog.Logger
}

// NewChromedpRenderer constructs a renderer.
func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{opts: opts, logger: logger}
}

// Render navigates to the target URL and exports the final DOM outer
// HTML. Session cookies are not carried into the browser, so rendering
// suits public pages only.
func (r *ChromedpRenderer) Render(parentCtx context.Context, target *url.URL, userAgent string) (*types.Page, error) {
	if target == nil {
		return nil, fmt.Errorf("render target URL is nil")
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	var html string
	var finalURL string

	actions := []chromedp.Action{
		chromedp.Navigate(target.String()),
	}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions,
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		delay := r.opts.CaptureDelay
		if delay <= 0 {
			delay = 1500 * time.Millisecond
		}
		actions = append(actions, chromedp.Sleep(delay))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	if int64(len(html)) > r.opts.MaxBodyBytes {
		html = html[:r.opts.MaxBodyBytes]
	}

	parsedFinal := target
	if finalURL != "" {
		if u, err := url.Parse(finalURL); err == nil {
			parsedFinal = u
		}
	}

	latency := time.Since(start)
	r.logger.Debug("chromedp render complete",
		"url", target.String(),
		"latency_ms", latency.Milliseconds(),
		"html_bytes", len(html),
	)

	return &types.Page{
		URL:             target,
		FinalURL:        parsedFinal,
		Body:            []byte(html),
		ContentType:     "text/html; charset=utf-8",
		StatusCode:      http.StatusOK,
		FetchedAt:       time.Now(),
		Rendered:        true,
		ResponseLatency: latency,
	}, nil
}

// Composite prefers the renderer when one is configured and falls back
// to plain HTTP on renderer errors.
type Composite struct {
	httpFetcher Fetcher
	renderer    *ChromedpRenderer
	logger      *slog.Logger
}

// NewComposite builds a composite fetcher. renderer may be nil, in which
// case the composite is a passthrough.
func NewComposite(httpFetcher Fetcher, renderer *ChromedpRenderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{httpFetcher: httpFetcher, renderer: renderer, logger: logger}
}

// Fetch renders the page when a renderer is configured, falling back to
// the HTTP fetcher on error.
func (c *Composite) Fetch(ctx context.Context, req *http.Request) types.FetchOutcome {
	if c.renderer != nil && req != nil {
		page, err := c.renderer.Render(ctx, req.URL, req.Header.Get("User-Agent"))
		if err == nil {
			return types.FetchOutcome{Kind: types.OutcomeSuccess, Page: page}
		}
		c.logger.Warn("renderer failed, falling back to HTTP fetch", "url", req.URL.String(), "error", err)
	}
	return c.httpFetcher.Fetch(ctx, req)
}
