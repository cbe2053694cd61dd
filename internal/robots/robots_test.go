package robots

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"semcrawl/internal/config"
)

func robotsServer(t *testing.T, body string) (*httptest.Server, *int) {
	t.Helper()
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches++
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestAllowedWhenDisabled(t *testing.T) {
	srv, fetches := robotsServer(t, "User-agent: *\nDisallow: /")
	agent := NewAgent(config.RobotsConfig{Respect: false}, srv.Client())

	if !agent.Allowed(context.Background(), mustURL(t, srv.URL+"/private")) {
		t.Fatal("disabled agent must allow everything")
	}
	if *fetches != 0 {
		t.Fatalf("disabled agent must not fetch robots.txt, got %d fetches", *fetches)
	}
}

func TestAllowedAppliesRules(t *testing.T) {
	srv, _ := robotsServer(t, "User-agent: *\nDisallow: /private\nAllow: /")
	agent := NewAgent(config.RobotsConfig{Respect: true, UserAgent: "semcrawl/1.0"}, srv.Client())

	if agent.Allowed(context.Background(), mustURL(t, srv.URL+"/private/page")) {
		t.Fatal("expected /private to be disallowed")
	}
	if !agent.Allowed(context.Background(), mustURL(t, srv.URL+"/public")) {
		t.Fatal("expected /public to be allowed")
	}
}

func TestAllowedCachesPerHost(t *testing.T) {
	srv, fetches := robotsServer(t, "User-agent: *\nAllow: /")
	agent := NewAgent(config.RobotsConfig{Respect: true}, srv.Client())

	for i := 0; i < 5; i++ {
		agent.Allowed(context.Background(), mustURL(t, srv.URL+"/page"))
	}
	if *fetches != 1 {
		t.Fatalf("expected one robots.txt fetch, got %d", *fetches)
	}
}

func TestAllowedFailsOpenOnMissingRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	agent := NewAgent(config.RobotsConfig{Respect: true}, srv.Client())
	if !agent.Allowed(context.Background(), mustURL(t, srv.URL+"/page")) {
		t.Fatal("missing robots.txt must not block a fetch")
	}
}

func TestAllowedHonorsOverrides(t *testing.T) {
	srv, fetches := robotsServer(t, "User-agent: *\nDisallow: /")
	host := mustURL(t, srv.URL).Hostname()
	agent := NewAgent(config.RobotsConfig{Respect: true, Overrides: []string{host}}, srv.Client())

	if !agent.Allowed(context.Background(), mustURL(t, srv.URL+"/anything")) {
		t.Fatal("override host must bypass robots rules")
	}
	if *fetches != 0 {
		t.Fatalf("override host must not fetch robots.txt, got %d", *fetches)
	}
}
