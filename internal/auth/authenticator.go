package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"semcrawl/pkg/types"
)

// ErrNotRefreshable is returned by Refresh for credential kinds that
// cannot re-establish a session. Callers must not retry on it.
var ErrNotRefreshable = errors.New("credentials are not refreshable")

// Error describes a failed login exchange.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// LoginSignature reports whether a successful-looking response is really
// a login page. finalURL is the effective URL after redirects; body is
// the response body. The exact rule is site-specific, so callers may
// supply their own predicate.
type LoginSignature func(requested, finalURL *url.URL, body []byte) bool

// csrfFieldNames are hidden-input names commonly used for CSRF tokens on
// login forms (Confluence and friends).
var csrfFieldNames = []string{"atl_token", "csrf_token", "_csrf", "authenticity_token"}

// Authenticator owns credential state, applies it to outgoing requests,
// and performs the login exchange for refreshable credentials.
type Authenticator struct {
	creds     Credentials
	client    *http.Client
	signature LoginSignature
	logger    *slog.Logger
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithLoginSignature replaces the default redirect-to-login heuristic.
func WithLoginSignature(fn LoginSignature) Option {
	return func(a *Authenticator) { a.signature = fn }
}

// New builds an Authenticator around the given credentials. client is
// used for the login exchange; loginKeywords feed the default login-page
// signature (a 2xx/3xx response that was redirected to a URL containing
// one of the keywords counts as an auth failure).
func New(creds Credentials, client *http.Client, loginKeywords []string, logger *slog.Logger, opts ...Option) *Authenticator {
	if creds == nil {
		creds = None{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		creds:     creds,
		client:    client,
		signature: keywordSignature(loginKeywords),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply attaches the current credential snapshot to an outgoing request.
// It reads credential state but never mutates it.
func (a *Authenticator) Apply(req *http.Request) {
	a.creds.apply(req)
}

// Kind returns the kind of the held credentials.
func (a *Authenticator) Kind() Kind {
	return a.creds.Kind()
}

// CanRefresh reports whether Refresh can ever succeed for the held
// credential kind.
func (a *Authenticator) CanRefresh() bool {
	return a.creds.Kind() == KindRefreshableCookies
}

// IsAuthFailure reports whether a fetch outcome signals an expired or
// invalid session. Besides the obvious 401/403 statuses this also
// catches session-based sites that answer 200 with a login form after a
// redirect.
func (a *Authenticator) IsAuthFailure(out types.FetchOutcome) bool {
	page := out.Page
	if page == nil {
		return false
	}
	switch page.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	if page.StatusCode < 200 || page.StatusCode >= 400 {
		return false
	}
	if a.signature == nil {
		return false
	}
	return a.signature(page.URL, page.FinalURL, page.Body)
}

// Refresh performs one login exchange and atomically replaces the stored
// cookies on success. On failure the old credentials stay in place so a
// caller can still decide to abort or continue. There is never more than
// one attempt per call; retry policy belongs to the crawl loop.
func (a *Authenticator) Refresh(ctx context.Context) error {
	rc, ok := a.creds.(*RefreshableCookies)
	if !ok {
		return ErrNotRefreshable
	}

	cookies, err := a.login(ctx, rc)
	if err != nil {
		return err
	}

	rc.replaceCookies(cookies)
	a.logger.Info("session refreshed", "cookies", rc.CookieNames())
	return nil
}

// login runs the GET-for-CSRF-token then POST-credentials exchange and
// returns the resulting cookie set.
func (a *Authenticator) login(ctx context.Context, rc *RefreshableCookies) (map[string]string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &Error{Reason: "create cookie jar", Err: err}
	}
	seedJar(jar, rc.loginURL, rc.cookies)

	// A dedicated client keeps the exchange's cookie accumulation away
	// from the shared fetch client.
	client := &http.Client{
		Transport: a.client.Transport,
		Timeout:   a.client.Timeout,
		Jar:       jar,
	}

	token, err := a.fetchCSRFToken(ctx, client, rc.loginURL)
	if err != nil {
		a.logger.Debug("csrf token fetch failed, posting without token", "error", err)
	}

	form := url.Values{}
	form.Set(rc.usernameField, rc.username)
	form.Set(rc.passwordField, rc.password)
	if token != "" {
		form.Set("atl_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Reason: "build login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", rc.loginURL.String())
	req.Header.Set("Origin", rc.loginURL.Scheme+"://"+rc.loginURL.Host)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Reason: "login request", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusFound, http.StatusSeeOther:
	default:
		return nil, &Error{Reason: fmt.Sprintf("login failed with status %d", resp.StatusCode)}
	}

	cookies := collectCookies(jar, rc.loginURL)
	if len(cookies) == 0 {
		return nil, &Error{Reason: "login returned no cookies"}
	}
	return cookies, nil
}

// fetchCSRFToken GETs the login page and scrapes the first known CSRF
// hidden-input value.
func (a *Authenticator) fetchCSRFToken(ctx context.Context, client *http.Client, loginURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	for _, name := range csrfFieldNames {
		sel := doc.Find(fmt.Sprintf("input[name=%q]", name)).First()
		if value, ok := sel.Attr("value"); ok && value != "" {
			return value, nil
		}
	}
	return "", nil
}

func seedJar(jar http.CookieJar, loginURL *url.URL, cookies map[string]string) {
	if len(cookies) == 0 {
		return
	}
	seeded := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		seeded = append(seeded, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(siteRoot(loginURL), seeded)
}

// collectCookies merges jar cookies applicable to the site root and the
// login URL itself, since servers scope session cookies differently.
func collectCookies(jar http.CookieJar, loginURL *url.URL) map[string]string {
	merged := make(map[string]string)
	for _, c := range jar.Cookies(siteRoot(loginURL)) {
		merged[c.Name] = c.Value
	}
	for _, c := range jar.Cookies(loginURL) {
		merged[c.Name] = c.Value
	}
	return merged
}

func siteRoot(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

// keywordSignature builds the default login-page heuristic: the response
// was redirected and the effective URL contains a login-ish keyword.
func keywordSignature(keywords []string) LoginSignature {
	if len(keywords) == 0 {
		return nil
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return func(requested, finalURL *url.URL, body []byte) bool {
		if requested == nil || finalURL == nil {
			return false
		}
		if requested.String() == finalURL.String() {
			return false
		}
		target := strings.ToLower(finalURL.String())
		for _, kw := range lowered {
			if strings.Contains(target, kw) {
				return true
			}
		}
		return false
	}
}
