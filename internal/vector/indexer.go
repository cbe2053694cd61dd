package vector

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"semcrawl/pkg/types"
)

// Indexer embeds crawled pages and upserts them into the vector store.
// Embedding calls run with bounded concurrency, but batches are
// submitted in crawl order, which downstream consumers rely on.
type Indexer struct {
	embedder    Embedder
	store       Store
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewIndexer builds an indexer.
func NewIndexer(embedder Embedder, store Store, batchSize, concurrency int, logger *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 16
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder:    embedder,
		store:       store,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
	}
}

// IndexPages embeds and stores all pages, batch by batch in crawl order.
func (ix *Indexer) IndexPages(ctx context.Context, pages []types.CrawledPage) error {
	for start := 0; start < len(pages); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(pages) {
			end = len(pages)
		}
		if err := ix.indexBatch(ctx, pages[start:end]); err != nil {
			return fmt.Errorf("index batch starting at %d: %w", start, err)
		}
		ix.logger.Info("indexed batch", "from", start, "to", end)
	}
	return nil
}

func (ix *Indexer) indexBatch(ctx context.Context, pages []types.CrawledPage) error {
	entries := make([]Entry, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for i, page := range pages {
		g.Go(func() error {
			// Title plus text embeds better than text alone.
			document := page.Title + "\n\n" + page.Text
			embedding, err := ix.embedder.Embed(gctx, document)
			if err != nil {
				return fmt.Errorf("embed %s: %w", page.URL, err)
			}
			entries[i] = Entry{
				URL:       page.URL,
				Title:     page.Title,
				Text:      page.Text,
				Embedding: embedding,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ix.store.Upsert(ctx, entries)
}

// Search embeds the query and returns the closest stored entries.
func (ix *Indexer) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.store.Query(ctx, embedding, topK)
}
