package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReader(t *testing.T) {
	yaml := `
crawl:
  base_url: https://wiki.example.com
  max_pages: 10
  delay: 500ms
  stealth: false
auth:
  type: auto_cookies
  login_url: https://wiki.example.com/login
  username: bot
  password: secret
db:
  driver: sqlite
  dsn: /tmp/test.db
output:
  results_file: out.json
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Crawl.BaseURL != "https://wiki.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Crawl.BaseURL)
	}
	if cfg.Crawl.MaxPages != 10 {
		t.Fatalf("expected max_pages 10, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.Delay.Duration != 500*time.Millisecond {
		t.Fatalf("expected delay 500ms, got %s", cfg.Crawl.Delay)
	}
	if cfg.Crawl.Stealth {
		t.Fatal("expected stealth disabled")
	}
	if cfg.Auth.Type != AuthAutoCookies {
		t.Fatalf("expected auth type auto_cookies, got %q", cfg.Auth.Type)
	}
	// Defaults survive a partial file.
	if cfg.Auth.UsernameField != "username" {
		t.Fatalf("expected default username field, got %q", cfg.Auth.UsernameField)
	}
	if len(cfg.Crawl.UserAgentPool) == 0 {
		t.Fatal("expected default user agent pool")
	}
	if len(cfg.Crawl.ExcludedExtensions) == 0 {
		t.Fatal("expected default excluded extensions")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := `
crawl:
  base_url: https://example.com
  max_pagez: 10
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDurationAcceptsNumericSeconds(t *testing.T) {
	yaml := `
crawl:
  base_url: https://example.com
  delay: 3
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Crawl.Delay.Duration != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.Crawl.Delay)
	}
}

func TestDurationYAMLForms(t *testing.T) {
	tests := []struct {
		name    string
		delay   string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", delay: "500ms", want: 500 * time.Millisecond},
		{name: "fractional seconds", delay: "1.5", want: 1500 * time.Millisecond},
		{name: "zero", delay: "0", want: 0},
		{name: "garbage", delay: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "crawl:\n  base_url: https://example.com\n  delay: " + tt.delay + "\n"
			cfg, err := LoadFromReader(strings.NewReader(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for delay %q", tt.delay)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if cfg.Crawl.Delay.Duration != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, cfg.Crawl.Delay)
			}
		})
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("BASE_URL", "https://env.example.com")
	t.Setenv("MAX_PAGES", "7")
	t.Setenv("DELAY", "4")
	t.Setenv("STEALTH_MODE", "false")
	t.Setenv("DATABASE_PATH", "/tmp/env.db")
	t.Setenv("OUTPUT_FILE", "env_results.json")
	t.Setenv("AUTH_TYPE", "cookies")
	t.Setenv("AUTH_COOKIES", "JSESSIONID=abc; remember=1")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Crawl.BaseURL != "https://env.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Crawl.BaseURL)
	}
	if cfg.Crawl.MaxPages != 7 {
		t.Fatalf("expected max_pages 7, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.Delay.Duration != 4*time.Second {
		t.Fatalf("expected delay 4s, got %s", cfg.Crawl.Delay)
	}
	if cfg.Crawl.Stealth {
		t.Fatal("expected stealth disabled")
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "/tmp/env.db" {
		t.Fatalf("unexpected db config %q %q", cfg.DB.Driver, cfg.DB.DSN)
	}
	if cfg.Output.ResultsFile != "env_results.json" {
		t.Fatalf("unexpected results file %q", cfg.Output.ResultsFile)
	}
	if cfg.Auth.Type != AuthCookies {
		t.Fatalf("expected auth type cookies, got %q", cfg.Auth.Type)
	}
	if cfg.Auth.Cookies["JSESSIONID"] != "abc" || cfg.Auth.Cookies["remember"] != "1" {
		t.Fatalf("unexpected cookies %v", cfg.Auth.Cookies)
	}
}

func TestParseCookies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "two cookies", raw: "a=1;b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "keys trimmed, values kept", raw: " a = 1 ; b=2 ", want: map[string]string{"a": " 1", "b": "2"}},
		{name: "empty", raw: "", want: nil},
		{name: "malformed segment dropped", raw: "a=1;nonsense;b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "value with equals", raw: "token=a=b=c", want: map[string]string{"token": "a=b=c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCookies(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("cookie %q: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Crawl.BaseURL = "https://example.com"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing base url", mutate: func(c *Config) { c.Crawl.BaseURL = "" }},
		{name: "bad scheme", mutate: func(c *Config) { c.Crawl.BaseURL = "ftp://example.com" }},
		{name: "zero max pages", mutate: func(c *Config) { c.Crawl.MaxPages = 0 }},
		{name: "negative delay", mutate: func(c *Config) { c.Crawl.Delay = DurationFrom(-time.Second) }},
		{name: "unknown auth type", mutate: func(c *Config) { c.Auth.Type = "mystery" }},
		{name: "cookies without cookies", mutate: func(c *Config) { c.Auth.Type = AuthCookies }},
		{name: "auto_cookies without login url", mutate: func(c *Config) {
			c.Auth.Type = AuthAutoCookies
			c.Auth.Username = "u"
			c.Auth.Password = "p"
		}},
		{name: "auto_cookies without password", mutate: func(c *Config) {
			c.Auth.Type = AuthAutoCookies
			c.Auth.LoginURL = "https://example.com/login"
			c.Auth.Username = "u"
		}},
		{name: "basic without credentials", mutate: func(c *Config) { c.Auth.Type = AuthBasic }},
		{name: "vector enabled without api key", mutate: func(c *Config) { c.Vector.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNormaliseFillsDefaults(t *testing.T) {
	cfg := Config{}
	cfg.Auth.Type = "  AUTO_COOKIES "
	cfg.normalise()

	if cfg.Auth.Type != AuthAutoCookies {
		t.Fatalf("expected normalised auth type, got %q", cfg.Auth.Type)
	}
	if cfg.Auth.UsernameField != "username" || cfg.Auth.PasswordField != "password" {
		t.Fatalf("expected default form fields, got %q/%q", cfg.Auth.UsernameField, cfg.Auth.PasswordField)
	}
	if len(cfg.Auth.LoginKeywords) == 0 {
		t.Fatal("expected default login keywords")
	}
	if len(cfg.Crawl.UserAgentPool) == 0 {
		t.Fatal("expected default user agent pool")
	}
}
