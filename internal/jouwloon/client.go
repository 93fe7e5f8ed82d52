// Package jouwloon talks to the jouwloon.nl scheduling site. The engine
// consumes it through the Client interface; the HTTP implementation here
// is the only place that knows the site's URLs and login flow.
package jouwloon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// AuthError indicates the provider rejected the credentials. It is
// reported to the user and retried on the next cycle, never escalated.
type AuthError struct {
	Username string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: failed to log in (wrong username or password?)", e.Username)
}

// Session is an authenticated provider session. The cookie jar lives in
// the embedded http.Client, so a Session is valid for follow-up requests
// until the provider expires it; the engine creates one per refresh cycle.
type Session struct {
	username string
	http     *http.Client
}

// Client is the remote schedule collaborator consumed by the sync engine.
type Client interface {
	// Login authenticates and returns a session, or *AuthError on bad
	// credentials.
	Login(ctx context.Context, username, password string) (*Session, error)

	// FetchSchedule returns the raw schedule payload for the session's
	// user. The payload shape (HTML or JSON) depends on the provider
	// version; the normalizer detects it.
	FetchSchedule(ctx context.Context, s *Session) ([]byte, error)

	// FetchShiftDescription fetches the free-text description for the
	// shift on the given date. Best-effort; callers treat a failure as
	// an empty description.
	FetchShiftDescription(ctx context.Context, s *Session, date time.Time) (string, error)
}

// HTTPClient implements Client against a live provider instance.
// Construct it once at startup; the compiled description pattern and the
// timeout are shared by all sessions.
type HTTPClient struct {
	base        string
	timeout     time.Duration
	description *regexp.Regexp
}

// NewHTTPClient creates a client for the provider at base (no trailing
// slash), e.g. "https://jouwloon.nl".
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base:        strings.TrimRight(base, "/"),
		timeout:     30 * time.Second,
		description: regexp.MustCompile(`>\((.+?)\)<`),
	}
}

// Login posts the credential form. The provider redirects away from
// /login on success and back onto it on failure; that is the only
// success signal it gives.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Jar:     jar,
		Timeout: c.timeout,
	}

	form := url.Values{
		"username": {username},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.Request.URL.Path == "/login" {
		return nil, &AuthError{Username: username}
	}

	return &Session{username: username, http: httpClient}, nil
}

// FetchSchedule retrieves the schedule page body.
func (c *HTTPClient) FetchSchedule(ctx context.Context, s *Session) ([]byte, error) {
	body, err := c.get(ctx, s, c.base+"/rooster")
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	return body, nil
}

// FetchShiftDescription retrieves the per-day detail page and extracts
// the parenthesized description.
func (c *HTTPClient) FetchShiftDescription(ctx context.Context, s *Session, date time.Time) (string, error) {
	u := fmt.Sprintf("%s/index.php/rooster/detail/%d-%d-%d", c.base, date.Year(), int(date.Month()), date.Day())
	body, err := c.get(ctx, s, u)
	if err != nil {
		return "", fmt.Errorf("fetch shift description: %w", err)
	}

	m := c.description.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no description found for %s", date.Format("2006-01-02"))
	}
	return string(m[1]), nil
}

func (c *HTTPClient) get(ctx context.Context, s *Session, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
