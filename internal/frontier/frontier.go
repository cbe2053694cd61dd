// Package frontier implements the crawl frontier: a FIFO queue of
// discovered URLs plus the set of every URL ever enqueued. Together they
// guarantee at-most-once fetch per URL over a crawl's lifetime.
package frontier

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is a normalized absolute URL. Identity is the normalized string
// form; a Target is immutable once created.
type Target struct {
	url *url.URL
	key string
}

// URL returns the parsed form of the target.
func (t Target) URL() *url.URL { return t.url }

// Key returns the normalized string identity.
func (t Target) Key() string { return t.key }

// String implements fmt.Stringer.
func (t Target) String() string { return t.key }

// NewTarget normalizes a raw URL into a Target: scheme and host are
// lowercased, default ports dropped, the fragment stripped, an empty
// path becomes "/", and the query is kept as-is.
func NewTarget(raw string) (Target, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", raw, err)
	}
	return FromURL(parsed)
}

// FromURL normalizes an already-parsed URL into a Target.
func FromURL(u *url.URL) (Target, error) {
	if u == nil {
		return Target{}, fmt.Errorf("target URL is nil")
	}
	if !u.IsAbs() {
		return Target{}, fmt.Errorf("target %q is not absolute", u)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("target %q missing host", u)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	normalized := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: u.RawQuery,
	}
	return Target{url: normalized, key: normalized.String()}, nil
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// Frontier owns the pending queue and the visited-or-queued set. It is
// not safe for concurrent use: the crawl loop is the sole owner, one
// fetch in flight at a time.
//
// Invariant: dequeued + len(queue) == len(seen) at all times. A target
// enters the queue at most once ever; once dequeued it is never
// re-enqueued, even when its fetch fails.
type Frontier struct {
	queue    []Target
	seen     map[string]struct{}
	dequeued int
}

// New creates an empty frontier.
func New() *Frontier {
	return &Frontier{seen: make(map[string]struct{})}
}

// Enqueue adds the target to the tail of the queue unless it was ever
// enqueued before. It reports whether the target was accepted.
func (f *Frontier) Enqueue(t Target) bool {
	if t.key == "" {
		return false
	}
	if _, ok := f.seen[t.key]; ok {
		return false
	}
	f.seen[t.key] = struct{}{}
	f.queue = append(f.queue, t)
	return true
}

// Dequeue pops the head of the queue. The target stays in the seen set
// forever; the set only grows.
func (f *Frontier) Dequeue() (Target, bool) {
	if len(f.queue) == 0 {
		return Target{}, false
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	f.dequeued++
	return t, true
}

// Len returns the number of targets still queued.
func (f *Frontier) Len() int { return len(f.queue) }

// Empty reports whether the queue is drained.
func (f *Frontier) Empty() bool { return len(f.queue) == 0 }

// SeenCount returns the size of the visited-or-queued set.
func (f *Frontier) SeenCount() int { return len(f.seen) }

// DequeuedCount returns how many targets have ever been dequeued.
func (f *Frontier) DequeuedCount() int { return f.dequeued }
