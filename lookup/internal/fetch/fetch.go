// Package fetch implements the retrying HTTP client shared by every lookup
// source. It classifies failures into the three outcomes callers report:
// service unavailable (upstream answered unhappily), unreachable (transport
// kept failing), unexpected (a local fault before or outside the network).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/platecheck/guard"
)

// Sentinel errors. Their messages are user-facing and fixed: lookup results
// carry them verbatim.
var (
	// ErrServiceUnavailable means the upstream answered with a non-success
	// status that retrying will not fix.
	ErrServiceUnavailable = errors.New("Lookup service unavailable")

	// ErrUnreachable means every attempt failed at the transport layer or
	// with a 5xx.
	ErrUnreachable = errors.New("Could not reach lookup service")

	// ErrUnexpected means a local fault: bad URL, blocked URL, cancelled
	// context, request construction failure.
	ErrUnexpected = errors.New("Unexpected error during lookup")
)

// Reason maps an error to its fixed user-facing message. Sentinel causes
// collapse to their canonical text; anything else passes through.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrServiceUnavailable):
		return ErrServiceUnavailable.Error()
	case errors.Is(err, ErrUnreachable):
		return ErrUnreachable.Error()
	case errors.Is(err, ErrUnexpected):
		return ErrUnexpected.Error()
	default:
		return err.Error()
	}
}

// Config configures the client.
type Config struct {
	Timeout    time.Duration // per-attempt timeout. Default: 15s.
	RetryDelay time.Duration // fixed delay between attempts. Default: 2s.
	Attempts   int           // total attempts. Default: 3.
	MaxBytes   int64         // response body cap. Default: guard.MaxResponseBody.
	UserAgent  string
	// URLValidator validates URLs before any request (SSRF prevention).
	// Default: guard.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = guard.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "platecheck/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = guard.ValidateURL
	}
}

// Client performs HTTP requests with retry on transient failure.
type Client struct {
	client *http.Client
	config Config
}

// New creates a Client with SSRF protection on redirects.
func New(cfg Config) *Client {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Client{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Do performs method against rawURL with optional form body (POST) and query
// parameters, retrying transient failures up to the configured attempt count
// with a fixed delay between them. There is no delay after the final attempt.
//
// Transient: connection errors, per-attempt timeouts, HTTP 5xx. Terminal:
// any other non-200 status (ErrServiceUnavailable), local faults
// (ErrUnexpected). Exhausted attempts yield ErrUnreachable wrapping the last
// transient cause.
func (c *Client) Do(ctx context.Context, method, rawURL string, form, query url.Values) ([]byte, error) {
	if err := c.config.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnexpected, ctx.Err())
			}
		}

		body, err := c.attempt(ctx, method, u.String(), form)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrUnexpected) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// attempt runs one request. Errors not wrapping a sentinel are transient.
func (c *Client) attempt(ctx context.Context, method, fullURL string, form url.Values) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var bodyReader *strings.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(actx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Parent cancellation is not a network fault; attempt timeouts are.
		if ctx.Err() != nil && actx.Err() != context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrUnexpected, ctx.Err())
		}
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", ErrServiceUnavailable, resp.StatusCode)
	}

	body, err := guard.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
