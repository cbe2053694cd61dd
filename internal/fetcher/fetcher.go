// Package fetcher performs single HTTP round trips for the crawler and
// classifies their outcomes. Retry policy lives in the crawl loop, not
// here.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"semcrawl/pkg/types"
)

// Fetcher retrieves a web page for the crawler. Implementations perform
// exactly one logical fetch per call and never retry internally.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) types.FetchOutcome
}

// Options controls HTTP fetching behaviour.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPFetcher implements Fetcher via the Go http.Client.
type HTTPFetcher struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	return &HTTPFetcher{
		client:       client,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch performs one network round trip and classifies the result.
// Transport errors become transient failures, hard HTTP statuses become
// fatal failures, and 2xx/3xx become successes. Auth-expiry is not
// judged here; that is the authenticator's call, made on the raw
// outcome.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) types.FetchOutcome {
	if req == nil || req.URL == nil {
		return types.FetchOutcome{Kind: types.OutcomeFatal, Err: errors.New("request URL is nil")}
	}
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return types.FetchOutcome{Kind: types.OutcomeTransient, Err: fmt.Errorf("http fetch failed: %w", err)}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return types.FetchOutcome{Kind: types.OutcomeTransient, Err: err}
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	page := &types.Page{
		URL:             req.URL,
		FinalURL:        finalURL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header.Clone(),
		FetchedAt:       time.Now(),
		ResponseLatency: time.Since(start),
	}

	kind := types.OutcomeSuccess
	if resp.StatusCode >= 400 {
		kind = types.OutcomeFatal
	}
	out := types.FetchOutcome{Kind: kind, Page: page}
	if kind == types.OutcomeFatal {
		out.Err = fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return out
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// Client exposes the underlying HTTP client for reuse (robots.txt
// fetches and the login exchange share its transport).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
