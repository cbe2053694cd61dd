package types

import (
	"net/http"
	"net/url"
	"time"
)

// Page represents a single fetched HTTP response body plus metadata.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	Rendered        bool
	ResponseLatency time.Duration
}

// OutcomeKind classifies the result of a single fetch round trip.
type OutcomeKind int

const (
	// OutcomeSuccess covers 2xx/3xx responses with a readable body.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeAuthExpired marks a response judged to be a session-expiry
	// signal. The fetcher never produces this kind itself; the crawl loop
	// assigns it after consulting the authenticator.
	OutcomeAuthExpired
	// OutcomeTransient covers network-level failures (timeout, DNS,
	// connection refused) where no usable response was obtained.
	OutcomeTransient
	// OutcomeFatal covers hard HTTP failures (4xx/5xx) and unreadable bodies.
	OutcomeFatal
)

// String returns a short label for logging.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeTransient:
		return "transient_failure"
	default:
		return "fatal_failure"
	}
}

// FetchOutcome is the classified result of one network round trip. Page
// is non-nil whenever a response was received, including auth and
// status failures; Err is non-nil for transport-level failures.
type FetchOutcome struct {
	Kind OutcomeKind
	Page *Page
	Err  error
}

// StatusCode returns the HTTP status of the outcome, or 0 when no
// response was received.
func (o FetchOutcome) StatusCode() int {
	if o.Page == nil {
		return 0
	}
	return o.Page.StatusCode
}

// CrawledPage is the unit handed to sinks and the vector indexer once a
// page has been fetched and its text extracted. The crawl core does not
// retain page bodies after handoff.
type CrawledPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	TextLength int       `json:"text_length"`
	LinksCount int       `json:"links_count"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// StepState records how the crawl loop disposed of a dequeued target.
type StepState int

const (
	// StepFetched means the page was retrieved and handed to the sink.
	StepFetched StepState = iota
	// StepFailed means the target was consumed but yielded no page.
	StepFailed
	// StepSkipped means the target was filtered out before any fetch and
	// did not count against the page budget.
	StepSkipped
)

// String returns a short label for logging.
func (s StepState) String() string {
	switch s {
	case StepFetched:
		return "fetched"
	case StepFailed:
		return "failed"
	default:
		return "skipped"
	}
}
