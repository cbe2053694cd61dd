package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"semcrawl/pkg/types"
)

// WriteResults exports crawled pages to a JSON file in crawl order, for
// downstream consumers that ingest the artifact wholesale.
func WriteResults(path string, pages []types.CrawledPage) error {
	if path == "" {
		return fmt.Errorf("results path is empty")
	}
	if pages == nil {
		pages = []types.CrawledPage{}
	}

	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
