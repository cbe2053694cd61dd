// Package auth holds credential state for the crawler and implements the
// login exchange used to refresh expired sessions mid-crawl.
package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"semcrawl/internal/config"
)

// Kind enumerates the closed set of credential variants.
type Kind int

const (
	KindNone Kind = iota
	KindStaticHeaders
	KindStaticCookies
	KindBasic
	KindBearer
	KindRefreshableCookies
)

// String returns the configuration name of the credential kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindStaticHeaders:
		return "headers"
	case KindStaticCookies:
		return "cookies"
	case KindBasic:
		return "basic"
	case KindBearer:
		return "bearer"
	default:
		return "auto_cookies"
	}
}

// Credentials is a closed tagged variant over the supported credential
// shapes. Only RefreshableCookies mutates after construction, and only
// through Authenticator.Refresh.
type Credentials interface {
	Kind() Kind
	apply(req *http.Request)
}

// None carries no credentials.
type None struct{}

func (None) Kind() Kind              { return KindNone }
func (None) apply(req *http.Request) {}

// StaticHeaders injects fixed headers into every request.
type StaticHeaders struct {
	Headers map[string]string
}

func (StaticHeaders) Kind() Kind { return KindStaticHeaders }

func (c StaticHeaders) apply(req *http.Request) {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
}

// StaticCookies injects a fixed cookie set into every request.
type StaticCookies struct {
	Cookies map[string]string
}

func (StaticCookies) Kind() Kind { return KindStaticCookies }

func (c StaticCookies) apply(req *http.Request) {
	for name, value := range c.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// Basic performs HTTP basic authentication.
type Basic struct {
	Username string
	Password string
}

func (Basic) Kind() Kind { return KindBasic }

func (c Basic) apply(req *http.Request) {
	req.SetBasicAuth(c.Username, c.Password)
}

// Bearer sends a bearer token in the Authorization header.
type Bearer struct {
	Token string
}

func (Bearer) Kind() Kind { return KindBearer }

func (c Bearer) apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
}

// RefreshableCookies is the only mutable variant: a successful re-login
// replaces the cookie map wholesale. The zero value is not usable; build
// it through NewRefreshableCookies or FromConfig.
type RefreshableCookies struct {
	cookies       map[string]string
	loginURL      *url.URL
	username      string
	password      string
	usernameField string
	passwordField string
}

// NewRefreshableCookies builds refreshable cookie credentials. Initial
// cookies may be nil, in which case the first refresh establishes the
// session.
func NewRefreshableCookies(loginURL string, username, password, usernameField, passwordField string, initial map[string]string) (*RefreshableCookies, error) {
	parsed, err := url.Parse(loginURL)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("login url %q is not absolute", loginURL)
	}
	if usernameField == "" {
		usernameField = "username"
	}
	if passwordField == "" {
		passwordField = "password"
	}
	cookies := make(map[string]string, len(initial))
	for k, v := range initial {
		cookies[k] = v
	}
	return &RefreshableCookies{
		cookies:       cookies,
		loginURL:      parsed,
		username:      username,
		password:      password,
		usernameField: usernameField,
		passwordField: passwordField,
	}, nil
}

func (*RefreshableCookies) Kind() Kind { return KindRefreshableCookies }

func (c *RefreshableCookies) apply(req *http.Request) {
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// CookieNames returns the names of the currently held cookies, for
// logging without exposing values.
func (c *RefreshableCookies) CookieNames() []string {
	names := make([]string, 0, len(c.cookies))
	for name := range c.cookies {
		names = append(names, name)
	}
	return names
}

// replaceCookies swaps the stored cookie map. Called only after a
// successful login exchange; never applied on failure.
func (c *RefreshableCookies) replaceCookies(cookies map[string]string) {
	c.cookies = cookies
}

// FromConfig maps the configured auth section onto a credential variant.
func FromConfig(cfg config.AuthConfig) (Credentials, error) {
	switch cfg.Type {
	case "", config.AuthNone:
		return None{}, nil
	case config.AuthCookies:
		if len(cfg.Cookies) == 0 {
			return nil, fmt.Errorf("auth type %q requires cookies", cfg.Type)
		}
		return StaticCookies{Cookies: cfg.Cookies}, nil
	case config.AuthBasic:
		return Basic{Username: cfg.Username, Password: cfg.Password}, nil
	case config.AuthHeaders:
		if cfg.BearerToken != "" {
			return Bearer{Token: cfg.BearerToken}, nil
		}
		if len(cfg.Headers) == 0 {
			return nil, fmt.Errorf("auth type %q requires headers or a bearer token", cfg.Type)
		}
		return StaticHeaders{Headers: cfg.Headers}, nil
	case config.AuthAutoCookies:
		return NewRefreshableCookies(cfg.LoginURL, cfg.Username, cfg.Password, cfg.UsernameField, cfg.PasswordField, cfg.Cookies)
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}
