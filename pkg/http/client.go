package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to JSON APIs. Temporary failures are retried up to the
// configured count, waiting Retry-After when the server sends one.
type Client struct {
	hc        *http.Client
	timeout   time.Duration
	transport http.RoundTripper
	retries   int
	backoff   time.Duration
	userAgent string
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// WithTransport replaces the default round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.transport = rt }
}

// WithRetries retries temporary failures n times with a linear backoff.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = n
		c.backoff = backoff
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   30 * time.Second,
		backoff:   500 * time.Millisecond,
		userAgent: "tickwatch",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hc = &http.Client{Timeout: c.timeout, Transport: c.transport}
	return c
}

// PostJSON encodes in as the request body and decodes the response into out.
// out may be nil.
func (c *Client) PostJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

// GetJSON issues a GET with query and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.once(ctx, method, endpoint, body, out)
		if err == nil || attempt >= c.retries {
			return err
		}
		se, ok := err.(*StatusError)
		if !ok || !se.Temporary() {
			return err
		}

		wait := se.RetryAfter
		if wait <= 0 {
			wait = c.backoff * time.Duration(attempt+1)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func (c *Client) once(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       b,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// retryAfter accepts the delta-seconds form only.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
