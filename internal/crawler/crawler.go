// Package crawler drives the sequential crawl loop: dequeue, pace,
// fetch with a single auth-refresh retry, extract, enqueue, persist.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"semcrawl/internal/auth"
	"semcrawl/internal/config"
	"semcrawl/internal/extract"
	"semcrawl/internal/fetcher"
	"semcrawl/internal/frontier"
	"semcrawl/pkg/types"
)

// Authenticator is the credential collaborator of the crawl loop.
type Authenticator interface {
	// Apply attaches the current credential snapshot to a request.
	Apply(req *http.Request)
	// IsAuthFailure judges whether an outcome signals session expiry.
	IsAuthFailure(out types.FetchOutcome) bool
	// Refresh performs exactly one re-login attempt. It returns
	// auth.ErrNotRefreshable for credential kinds that cannot refresh.
	Refresh(ctx context.Context) error
}

// Sink persists crawled pages. Sink failures are logged, never fatal to
// the crawl: a page that fails to persist still counts as fetched.
type Sink interface {
	Save(ctx context.Context, page types.CrawledPage) error
}

// RobotsPolicy optionally filters fetches by robots.txt rules.
type RobotsPolicy interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Report summarises a finished crawl. Pages holds the crawled pages in
// fetch order for downstream export and embedding, which expects the
// crawl's ordering preserved.
type Report struct {
	RunID    string
	Pages    []types.CrawledPage
	Fetched  int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// Crawler is the single-threaded crawl orchestrator. One fetch is in
// flight at a time: pacing and the auth-refresh retry both depend on
// strict request ordering, so no locking is needed anywhere in the core.
type Crawler struct {
	cfg      config.Config
	fetch    fetcher.Fetcher
	builder  *fetcher.RequestBuilder
	auth     Authenticator
	sink     Sink
	robots   RobotsPolicy
	frontier *frontier.Frontier
	pacer    *Pacer
	limiter  *HostLimiter
	logger   *slog.Logger

	runID       string
	seed        frontier.Target
	allowedHost string
	excludedExt []string
	maxPages    int

	fetched int
	failed  int
	skipped int
	results []types.CrawledPage
}

// New validates the configuration and builds a crawler. Configuration
// errors surface here, before the loop ever starts; a crawl must not
// begin in an inconsistent state.
func New(cfg config.Config, fetch fetcher.Fetcher, authn Authenticator, sink Sink, robotsPolicy RobotsPolicy, logger *slog.Logger) (*Crawler, error) {
	if fetch == nil {
		return nil, errors.New("crawler requires a fetcher")
	}
	if authn == nil {
		return nil, errors.New("crawler requires an authenticator")
	}
	if logger == nil {
		logger = slog.Default()
	}

	seed, err := frontier.NewTarget(cfg.Crawl.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if s := seed.URL().Scheme; s != "http" && s != "https" {
		return nil, fmt.Errorf("base url scheme %q is not http or https", s)
	}
	if cfg.Crawl.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be positive (got %d)", cfg.Crawl.MaxPages)
	}

	runID := cfg.Job.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	builder := fetcher.NewRequestBuilder(
		cfg.Crawl.UserAgent,
		cfg.Crawl.UserAgentPool,
		cfg.Crawl.Stealth,
		cfg.Crawl.Headers,
		rng,
	)

	return &Crawler{
		cfg:         cfg,
		fetch:       fetch,
		builder:     builder,
		auth:        authn,
		sink:        sink,
		robots:      robotsPolicy,
		frontier:    frontier.New(),
		pacer:       NewPacer(cfg.Crawl.Delay.Duration, cfg.Crawl.Stealth, rng),
		limiter:     NewHostLimiter(cfg.Crawl.RateLimit.Requests, cfg.Crawl.RateLimit.Window.Duration),
		logger:      logger.With("run_id", runID),
		runID:       runID,
		seed:        seed,
		allowedHost: seed.URL().Hostname(),
		excludedExt: cfg.Crawl.ExcludedExtensions,
		maxPages:    cfg.Crawl.MaxPages,
	}, nil
}

// Run executes the crawl until the frontier drains, the page budget is
// exhausted, or the context is cancelled between iterations. Partial
// results are always returned; only startup configuration problems
// abort a crawl.
func (c *Crawler) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	c.frontier.Enqueue(c.seed)

	c.logger.Info("crawl starting",
		"base_url", c.seed.String(),
		"max_pages", c.maxPages,
		"stealth", c.cfg.Crawl.Stealth,
	)

	var runErr error
	for c.fetched < c.maxPages && !c.frontier.Empty() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		target, ok := c.frontier.Dequeue()
		if !ok {
			break
		}

		state, err := c.step(ctx, target)
		switch state {
		case types.StepFetched:
			c.fetched++
		case types.StepFailed:
			c.failed++
		case types.StepSkipped:
			c.skipped++
		}
		if err != nil {
			runErr = err
			break
		}
	}

	report := &Report{
		RunID:    c.runID,
		Pages:    c.results,
		Fetched:  c.fetched,
		Failed:   c.failed,
		Skipped:  c.skipped,
		Duration: time.Since(start),
	}
	c.logger.Info("crawl finished",
		"fetched", report.Fetched,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"queued_remaining", c.frontier.Len(),
		"duration", report.Duration.String(),
	)
	return report, runErr
}

// step processes one dequeued target. The returned error is non-nil
// only for context cancellation; per-URL failures are absorbed into the
// step state.
func (c *Crawler) step(ctx context.Context, target frontier.Target) (types.StepState, error) {
	u := target.URL()
	log := c.logger.With("url", target.Key())

	if !c.inScope(u) {
		log.Debug("skipping out-of-scope target")
		return types.StepSkipped, nil
	}
	if c.robots != nil && !c.robots.Allowed(ctx, u) {
		log.Debug("blocked by robots")
		return types.StepSkipped, nil
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return types.StepSkipped, err
	}
	if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
		return types.StepSkipped, err
	}

	out, err := c.fetchOnce(ctx, u)
	if err != nil {
		log.Error("request build failed", "error", err)
		return types.StepFailed, nil
	}

	// Exactly one refresh-and-retry cycle per detected expiry. The
	// tried-once bound is structural: there is no loop here to unwind.
	if c.auth.IsAuthFailure(out) {
		out.Kind = types.OutcomeAuthExpired
		log.Warn("authentication expired", "status", out.StatusCode())

		if err := c.auth.Refresh(ctx); err != nil {
			if errors.Is(err, auth.ErrNotRefreshable) {
				log.Warn("credentials not refreshable, giving up on target")
			} else {
				log.Error("session refresh failed", "error", err)
			}
			return types.StepFailed, nil
		}

		retry, err := c.fetchOnce(ctx, u)
		if err != nil {
			log.Error("request build failed on retry", "error", err)
			return types.StepFailed, nil
		}
		if c.auth.IsAuthFailure(retry) {
			log.Warn("authentication still rejected after refresh", "status", retry.StatusCode())
			return types.StepFailed, nil
		}
		out = retry
	}

	switch out.Kind {
	case types.OutcomeSuccess:
		return c.handleSuccess(ctx, target, out.Page, log)
	case types.OutcomeTransient:
		log.Warn("fetch failed", "error", out.Err)
		return types.StepFailed, nil
	default:
		log.Warn("fetch rejected", "status", out.StatusCode(), "error", out.Err)
		return types.StepFailed, nil
	}
}

// fetchOnce builds a fresh request, applies the current credential
// snapshot, and performs one round trip. Rebuilding per attempt matters:
// a retry after refresh must carry the new cookies.
func (c *Crawler) fetchOnce(ctx context.Context, u *url.URL) (types.FetchOutcome, error) {
	req, err := c.builder.New(ctx, u)
	if err != nil {
		return types.FetchOutcome{}, err
	}
	c.auth.Apply(req)
	return c.fetch.Fetch(ctx, req), nil
}

func (c *Crawler) handleSuccess(ctx context.Context, target frontier.Target, page *types.Page, log *slog.Logger) (types.StepState, error) {
	content, err := extract.Page(page.Body)
	if err != nil {
		log.Warn("text extraction failed", "error", err)
		return types.StepFailed, nil
	}

	base := page.FinalURL
	if base == nil {
		base = page.URL
	}
	links := extract.Links(page.Body, base, c.cfg.Crawl.MaxLinksPerPage)

	enqueued := 0
	for _, link := range links {
		t, err := frontier.FromURL(link)
		if err != nil {
			continue
		}
		if !c.inScope(t.URL()) {
			continue
		}
		if c.frontier.Enqueue(t) {
			enqueued++
		}
	}

	crawled := types.CrawledPage{
		URL:        target.Key(),
		Title:      content.Title,
		Text:       content.Text,
		TextLength: len(content.Text),
		LinksCount: len(links),
		StatusCode: page.StatusCode,
		FetchedAt:  page.FetchedAt,
	}

	if c.sink != nil {
		if err := c.sink.Save(ctx, crawled); err != nil {
			// Persistence failure never aborts the crawl; the page was
			// retrieved, so budget accounting follows network activity.
			log.Error("sink save failed", "error", err)
		}
	}
	c.results = append(c.results, crawled)

	log.Info("page crawled",
		"status", page.StatusCode,
		"title", content.Title,
		"text_length", crawled.TextLength,
		"links", len(links),
		"newly_queued", enqueued,
	)
	return types.StepFetched, nil
}

// inScope applies the domain containment and file-extension rules. Out
// of scope targets are skipped without counting toward the page budget.
func (c *Crawler) inScope(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(u.Hostname(), c.allowedHost) {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range c.excludedExt {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
