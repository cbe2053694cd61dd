package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"semcrawl/internal/auth"
	"semcrawl/internal/config"
	"semcrawl/internal/crawler"
	"semcrawl/internal/fetcher"
	"semcrawl/internal/robots"
	"semcrawl/internal/storage"
	"semcrawl/internal/vector"
	"semcrawl/pkg/types"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a site and store the extracted content",
		Long: `Crawl fetches pages breadth-first starting from the base URL, staying
within the base URL's domain. Session cookies obtained through a login
form are refreshed automatically when the site signals expiry.

Examples:
  # Crawl a public site
  semcrawl crawl --base-url https://example.com --max-pages 20

  # Crawl behind a login form, re-authenticating on session expiry
  AUTH_TYPE=auto_cookies AUTH_LOGIN_URL=https://example.com/login \
  AUTH_USERNAME=bot AUTH_PASSWORD=secret \
  semcrawl crawl --base-url https://example.com

  # Use a configuration file
  semcrawl crawl -c semcrawl.yaml`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("base-url", "u", "", "Root URL to start crawling from")
	cmd.Flags().IntP("max-pages", "p", 0, "Maximum number of pages to fetch")
	cmd.Flags().DurationP("delay", "d", 0, "Base delay between requests")
	cmd.Flags().Bool("stealth", true, "Rotate user agents and jitter delays")
	cmd.Flags().StringP("output", "o", "", "JSON results file path")
	cmd.Flags().String("db", "", "Database DSN (sqlite path or postgres URL)")
	cmd.Flags().Bool("render", false, "Render pages with headless Chrome")
	cmd.Flags().Bool("index", false, "Embed crawled pages into the vector store")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyCrawlFlags(cmd, cfg)
	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := setupLogger(cfg.Logging, verbose)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd, cfg, logger)
}

// applyCrawlFlags overlays explicitly set flags onto the configuration.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Crawl.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("max-pages") {
		cfg.Crawl.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("delay") {
		d, _ := flags.GetDuration("delay")
		cfg.Crawl.Delay = config.DurationFrom(d)
	}
	if flags.Changed("stealth") {
		cfg.Crawl.Stealth, _ = flags.GetBool("stealth")
	}
	if flags.Changed("output") {
		cfg.Output.ResultsFile, _ = flags.GetString("output")
	}
	if flags.Changed("db") {
		cfg.DB.DSN, _ = flags.GetString("db")
	}
	if flags.Changed("render") {
		cfg.Rendering.Enabled, _ = flags.GetBool("render")
	}
	if flags.Changed("index") {
		cfg.Vector.Enabled, _ = flags.GetBool("index")
	}
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	creds, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build credentials: %w", err)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		ProxyURL:     cfg.Crawl.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}

	authn := auth.New(creds, httpFetcher.Client(), cfg.Auth.LoginKeywords, logger)

	var fetch fetcher.Fetcher = httpFetcher
	if cfg.Rendering.Enabled {
		renderer := fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:         cfg.Rendering.Timeout.Duration,
			WaitForSelector: cfg.Rendering.WaitForSelector,
			CaptureDelay:    cfg.Rendering.CaptureDelay.Duration,
			MaxBodyBytes:    cfg.Crawl.MaxBodyBytes,
			DisableHeadless: cfg.Rendering.DisableHeadless,
		}, logger)
		fetch = fetcher.NewComposite(httpFetcher, renderer, logger)
	}

	sqlWriter, err := storage.NewSQLWriter(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlWriter.Close()

	robotsAgent := robots.NewAgent(cfg.Robots, httpFetcher.Client())

	c, err := crawler.New(*cfg, fetch, authn, storage.NewPipeline(sqlWriter), robotsAgent, logger)
	if err != nil {
		return err
	}

	report, runErr := c.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("crawl interrupted, exporting partial results")
	}

	if cfg.Output.ResultsFile != "" {
		if err := storage.WriteResults(cfg.Output.ResultsFile, report.Pages); err != nil {
			logger.Error("results export failed", "error", err)
		} else {
			logger.Info("results exported", "file", cfg.Output.ResultsFile, "pages", len(report.Pages))
		}
	}

	if cfg.Vector.Enabled && len(report.Pages) > 0 {
		if err := indexPages(cfg, logger, report.Pages); err != nil {
			logger.Error("vector indexing failed", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Crawl %s finished: %d fetched, %d failed, %d skipped in %s\n",
		report.RunID, report.Fetched, report.Failed, report.Skipped,
		report.Duration.Round(time.Millisecond))
	return nil
}

// indexPages embeds the crawl output after the crawl completes. Indexing
// runs on its own context so an interrupted crawl still gets its partial
// results embedded.
func indexPages(cfg *config.Config, logger *slog.Logger, pages []types.CrawledPage) error {
	ix, err := buildIndexer(cfg, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return ix.IndexPages(ctx, pages)
}

// buildIndexer wires the embedding client and vector store from config.
func buildIndexer(cfg *config.Config, logger *slog.Logger) (*vector.Indexer, error) {
	embedder, err := vector.NewOpenAIEmbedder(
		cfg.Vector.EmbeddingURL,
		cfg.Vector.APIKey,
		cfg.Vector.EmbeddingModel,
		cfg.Vector.Timeout.Duration,
	)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	store, err := vector.NewStore(cfg.Vector)
	if err != nil {
		return nil, fmt.Errorf("build vector store: %w", err)
	}
	return vector.NewIndexer(embedder, store, cfg.Vector.UpsertBatchSize, cfg.Vector.EmbedConcurrency, logger), nil
}
