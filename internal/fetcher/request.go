package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
)

// stealthHeaders mimic a real browser navigation. Sent only in stealth
// mode; the plain profile keeps the minimal Accept set.
var stealthHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}

// RequestBuilder constructs outgoing GET requests with the configured
// header profile. In stealth mode the User-Agent rotates per request
// from a pool of realistic browser strings.
type RequestBuilder struct {
	userAgent string
	pool      []string
	stealth   bool
	extra     map[string]string
	rng       *rand.Rand
}

// NewRequestBuilder creates a builder. pool is ignored unless stealth is
// enabled; rng may be nil for the default source.
func NewRequestBuilder(userAgent string, pool []string, stealth bool, extra map[string]string, rng *rand.Rand) *RequestBuilder {
	return &RequestBuilder{
		userAgent: userAgent,
		pool:      pool,
		stealth:   stealth,
		extra:     extra,
		rng:       rng,
	}
}

// New builds a GET request for the target with the current header
// profile applied. Credentials are not attached here; the authenticator
// does that.
func (b *RequestBuilder) New(ctx context.Context, target *url.URL) (*http.Request, error) {
	if target == nil {
		return nil, fmt.Errorf("target URL is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if b.stealth {
		for k, v := range stealthHeaders {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", b.pickUserAgent())
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.8")
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
		if b.userAgent != "" {
			req.Header.Set("User-Agent", b.userAgent)
		}
	}

	for k, v := range b.extra {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (b *RequestBuilder) pickUserAgent() string {
	if len(b.pool) == 0 {
		return b.userAgent
	}
	if b.rng == nil {
		return b.pool[rand.Intn(len(b.pool))]
	}
	return b.pool[b.rng.Intn(len(b.pool))]
}
