package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"semcrawl/internal/config"
	"semcrawl/pkg/types"
)

// SQLWriter persists crawled pages into a relational database. Both the
// sqlite and postgres drivers are supported; the pages table is keyed by
// URL and upserted so repeated crawls refresh rows in place.
type SQLWriter struct {
	db     *sql.DB
	driver string
}

// NewSQLWriter opens the configured database and optionally migrates the
// schema.
func NewSQLWriter(cfg config.SQLConfig) (*SQLWriter, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	writer := &SQLWriter{db: db, driver: driver}
	if cfg.AutoMigrate {
		if err := writer.ensureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return writer, nil
}

// Save upserts the page into the pages table.
func (s *SQLWriter) Save(ctx context.Context, page types.CrawledPage) error {
	query := `
        INSERT INTO pages (url, title, content, text_length, links_count, status_code, crawled_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (url) DO UPDATE SET
            title = EXCLUDED.title,
            content = EXCLUDED.content,
            text_length = EXCLUDED.text_length,
            links_count = EXCLUDED.links_count,
            status_code = EXCLUDED.status_code,
            crawled_at = EXCLUDED.crawled_at
    `
	if _, err := s.db.ExecContext(ctx, query,
		page.URL,
		page.Title,
		page.Text,
		page.TextLength,
		page.LinksCount,
		page.StatusCode,
		page.FetchedAt,
	); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// GetPage fetches a stored page by URL, returning sql.ErrNoRows when it
// was never crawled.
func (s *SQLWriter) GetPage(ctx context.Context, url string) (types.CrawledPage, error) {
	var page types.CrawledPage
	row := s.db.QueryRowContext(ctx, `
        SELECT url, title, content, text_length, links_count, status_code, crawled_at
        FROM pages WHERE url = $1
    `, url)
	if err := row.Scan(&page.URL, &page.Title, &page.Text, &page.TextLength, &page.LinksCount, &page.StatusCode, &page.FetchedAt); err != nil {
		return types.CrawledPage{}, err
	}
	return page, nil
}

// SearchPages performs a crude keyword search over title and content,
// newest first.
func (s *SQLWriter) SearchPages(ctx context.Context, term string, limit int) ([]types.CrawledPage, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx, `
        SELECT url, title, content, text_length, links_count, status_code, crawled_at
        FROM pages
        WHERE title LIKE $1 OR content LIKE $1
        ORDER BY crawled_at DESC
        LIMIT $2
    `, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var pages []types.CrawledPage
	for rows.Next() {
		var page types.CrawledPage
		if err := rows.Scan(&page.URL, &page.Title, &page.Text, &page.TextLength, &page.LinksCount, &page.StatusCode, &page.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// Close closes the underlying DB connection.
func (s *SQLWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLWriter) ensureSchema(ctx context.Context) error {
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	timestampType := "TIMESTAMP"
	if s.driver == "postgres" {
		timestampType = "TIMESTAMPTZ"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages (
            url TEXT PRIMARY KEY,
            title TEXT,
            content TEXT,
            text_length INTEGER,
            links_count INTEGER,
            status_code INTEGER,
            crawled_at %s
        )`, timestampType),
		`CREATE INDEX IF NOT EXISTS idx_pages_crawled_at ON pages (crawled_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
