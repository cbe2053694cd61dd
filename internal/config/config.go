package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Supported values for AuthConfig.Type.
const (
	AuthNone        = "none"
	AuthCookies     = "cookies"
	AuthAutoCookies = "auto_cookies"
	AuthBasic       = "basic"
	AuthHeaders     = "headers"
)

// Config captures the full configuration required to run a crawl and the
// search commands. It is constructed once at startup and passed by value
// into component constructors; nothing in the core reads ambient state.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        SQLConfig       `yaml:"db"`
	Vector    VectorConfig    `yaml:"vector"`
	Output    OutputConfig    `yaml:"output"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	Logging   LoggingConfig   `yaml:"logging"`
	Job       JobConfig       `yaml:"job"`
}

// CrawlConfig controls the crawl frontier, limits, and pacing.
type CrawlConfig struct {
	BaseURL            string            `yaml:"base_url"`
	MaxPages           int               `yaml:"max_pages"`
	Delay              Duration          `yaml:"delay"`
	Stealth            bool              `yaml:"stealth"`
	UserAgent          string            `yaml:"user_agent"`
	UserAgentPool      []string          `yaml:"user_agent_pool"`
	Headers            map[string]string `yaml:"headers"`
	ProxyURL           string            `yaml:"proxy_url"`
	RequestTimeout     Duration          `yaml:"request_timeout"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
	ExcludedExtensions []string          `yaml:"excluded_extensions"`
	MaxLinksPerPage    int               `yaml:"max_links_per_page"`
	RateLimit          RateLimitConfig   `yaml:"rate_limit"`
}

// RateLimitConfig applies an optional token bucket on top of the base delay.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether token-bucket rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// AuthConfig selects the credential kind and its parameters.
type AuthConfig struct {
	Type          string            `yaml:"type"`
	Cookies       map[string]string `yaml:"cookies"`
	Headers       map[string]string `yaml:"headers"`
	Username      string            `yaml:"username"`
	Password      string            `yaml:"password"`
	BearerToken   string            `yaml:"bearer_token"`
	LoginURL      string            `yaml:"login_url"`
	UsernameField string            `yaml:"username_field"`
	PasswordField string            `yaml:"password_field"`
	// LoginKeywords configure the redirect-to-login heuristic used to spot
	// session expiry behind a 200 response.
	LoginKeywords []string `yaml:"login_keywords"`
}

// SQLConfig describes the relational sink.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// VectorConfig describes the vector store and embedding provider used for
// semantic indexing and search.
type VectorConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Provider         string   `yaml:"provider"`
	Endpoint         string   `yaml:"endpoint"`
	Collection       string   `yaml:"collection"`
	EmbeddingURL     string   `yaml:"embedding_url"`
	EmbeddingModel   string   `yaml:"embedding_model"`
	APIKey           string   `yaml:"api_key"`
	UpsertBatchSize  int      `yaml:"upsert_batch_size"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	TopK             int      `yaml:"top_k"`
	Timeout          Duration `yaml:"timeout"`
}

// OutputConfig controls the ordered JSON export of crawl results.
type OutputConfig struct {
	ResultsFile string `yaml:"results_file"`
}

// RobotsConfig configures robots.txt handling. Respect defaults to false
// to match the behaviour of authenticated intranet crawls, where robots
// rules rarely apply.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	Overrides []string `yaml:"overrides"`
}

// RenderingConfig controls optional JavaScript rendering.
type RenderingConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Timeout         Duration `yaml:"timeout"`
	WaitForSelector string   `yaml:"wait_for_selector"`
	CaptureDelay    Duration `yaml:"capture_delay"`
	DisableHeadless bool     `yaml:"disable_headless"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// JobConfig identifies a crawl run. RunID is generated when empty.
type JobConfig struct {
	RunID string `yaml:"run_id"`
}

// defaultUserAgents are realistic browser User-Agent strings rotated per
// request when stealth mode is on.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// defaultExcludedExtensions are binary/media/archive suffixes never fetched.
var defaultExcludedExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".zip", ".rar",
	".doc", ".docx", ".xls", ".xlsx",
}

// defaultLoginKeywords flag a redirect target as a login page.
var defaultLoginKeywords = []string{"login", "signin", "auth", "authenticate"}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxPages:           50,
			Delay:              DurationFrom(2 * time.Second),
			Stealth:            true,
			UserAgent:          "semcrawl/1.0",
			UserAgentPool:      append([]string(nil), defaultUserAgents...),
			Headers:            map[string]string{},
			RequestTimeout:     DurationFrom(10 * time.Second),
			MaxBodyBytes:       6 * 1024 * 1024,
			ExcludedExtensions: append([]string(nil), defaultExcludedExtensions...),
			MaxLinksPerPage:    200,
		},
		Auth: AuthConfig{
			Type:          AuthNone,
			UsernameField: "username",
			PasswordField: "password",
			LoginKeywords: append([]string(nil), defaultLoginKeywords...),
		},
		DB: SQLConfig{
			Driver:      "sqlite",
			DSN:         defaultDatabasePath(),
			AutoMigrate: true,
		},
		Vector: VectorConfig{
			Enabled:          false,
			Provider:         "chroma",
			Endpoint:         "http://localhost:8000",
			Collection:       "crawled_pages",
			EmbeddingURL:     "https://api.openai.com",
			EmbeddingModel:   "text-embedding-3-small",
			UpsertBatchSize:  16,
			EmbedConcurrency: 4,
			TopK:             5,
			Timeout:          DurationFrom(30 * time.Second),
		},
		Output: OutputConfig{
			ResultsFile: "crawl_results.json",
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "semcrawl/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled: false,
			Timeout: DurationFrom(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
	}
}

func defaultDatabasePath() string {
	path, err := xdg.DataFile(filepath.Join("semcrawl", "crawl_data.db"))
	if err != nil {
		return "crawl_data.db"
	}
	return path
}

// Load reads, merges, and validates configuration from a YAML file. The
// process environment is applied on top of file values.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	cfg := Default()
	if err := decodeYAML(fh, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader without
// applying environment overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds configuration from defaults plus environment variables
// only, for running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Build returns configuration assembled from defaults, an optional YAML
// file, and the environment, without validating. Callers overlay CLI
// flags and then call Finalize.
func Build(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

// Finalize normalises the configuration and validates it.
func (c *Config) Finalize() error {
	c.normalise()
	return c.Validate()
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants. A crawl must not start from an
// inconsistent configuration, so all checks happen before the loop.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawl.BaseURL) == "" {
		return errors.New("crawl.base_url must be set")
	}
	base, err := url.Parse(c.Crawl.BaseURL)
	if err != nil {
		return fmt.Errorf("crawl.base_url invalid: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("crawl.base_url must be http or https (got %q)", base.Scheme)
	}
	if base.Host == "" {
		return errors.New("crawl.base_url missing host")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.Delay.Duration < 0 {
		return fmt.Errorf("crawl.delay must be >= 0 (got %s)", c.Crawl.Delay)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if rl := c.Crawl.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}

	switch c.Auth.Type {
	case AuthNone:
	case AuthCookies:
		if len(c.Auth.Cookies) == 0 {
			return errors.New("auth.cookies must be set when auth.type is cookies")
		}
	case AuthAutoCookies:
		if c.Auth.LoginURL == "" {
			return errors.New("auth.login_url must be set when auth.type is auto_cookies")
		}
		if _, err := url.ParseRequestURI(c.Auth.LoginURL); err != nil {
			return fmt.Errorf("auth.login_url invalid: %w", err)
		}
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return errors.New("auth.username and auth.password must be set when auth.type is auto_cookies")
		}
	case AuthBasic:
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return errors.New("auth.username and auth.password must be set when auth.type is basic")
		}
	case AuthHeaders:
		if len(c.Auth.Headers) == 0 && c.Auth.BearerToken == "" {
			return errors.New("auth.headers or auth.bearer_token must be set when auth.type is headers")
		}
	default:
		return fmt.Errorf("unknown auth.type %q", c.Auth.Type)
	}

	return c.Vector.Validate()
}

// Validate enforces the vector section's invariants when indexing or
// search is enabled.
func (v VectorConfig) Validate() error {
	if !v.Enabled {
		return nil
	}
	if strings.TrimSpace(v.Endpoint) == "" {
		return errors.New("vector.endpoint must be set when vector.enabled is true")
	}
	if strings.TrimSpace(v.Collection) == "" {
		return errors.New("vector.collection must be set when vector.enabled is true")
	}
	if strings.TrimSpace(v.APIKey) == "" {
		return errors.New("vector.api_key must be set when vector.enabled is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.BaseURL = strings.TrimSpace(c.Crawl.BaseURL)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Auth.Type = strings.ToLower(strings.TrimSpace(c.Auth.Type))
	if c.Auth.Type == "" {
		c.Auth.Type = AuthNone
	}
	if c.Auth.UsernameField == "" {
		c.Auth.UsernameField = "username"
	}
	if c.Auth.PasswordField == "" {
		c.Auth.PasswordField = "password"
	}
	if len(c.Auth.LoginKeywords) == 0 {
		c.Auth.LoginKeywords = append([]string(nil), defaultLoginKeywords...)
	}
	if len(c.Crawl.UserAgentPool) == 0 {
		c.Crawl.UserAgentPool = append([]string(nil), defaultUserAgents...)
	}
	if len(c.Crawl.ExcludedExtensions) > 0 {
		c.Crawl.ExcludedExtensions = dedupeLower(c.Crawl.ExcludedExtensions)
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
	c.Vector.Provider = strings.ToLower(strings.TrimSpace(c.Vector.Provider))
	c.Job.RunID = strings.TrimSpace(c.Job.RunID)
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
