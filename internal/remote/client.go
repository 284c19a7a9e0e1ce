package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/internal/clock"
	"github.com/mohammad-safakhou/notesync/internal/logging"
)

const (
	maxBodyBytes    = 64 << 20
	tokenExpirySkew = 30 * time.Second
	userAgent       = "notesync/2"
)

// ClientOptions configures the request engine.
type ClientOptions struct {
	HTTPClient        *http.Client
	Timeout           time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	ValidateResponses bool
	Logger            logrus.FieldLogger
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the clock used for token expiry checks.
	Now func() time.Time
}

// Client executes authenticated JSON POST requests with retry and backoff.
type Client struct {
	http       *http.Client
	tokens     TokenSource
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	validate   bool
	logger     logrus.FieldLogger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient builds a Client that authenticates with tokens.
func NewClient(tokens TokenSource, opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = clock.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		http:       hc,
		tokens:     tokens,
		maxRetries: retries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		validate:   opts.ValidateResponses,
		logger:     logging.Component(opts.Logger, "remote"),
		sleep:      opts.Sleep,
		now:        opts.Now,
	}
}

// Execute POSTs payload to url and returns the validated JSON body. It fails
// with *RequestError once every attempt has been used.
func (c *Client) Execute(ctx context.Context, url string, payload any) (json.RawMessage, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", url, err)
	}

	var (
		lastErr     error
		lastStatus  int
		calls       int
		authRetried bool
	)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		calls++
		status, respBody, err := c.post(ctx, url, body, token)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastStatus = err, 0
			c.logger.WithError(err).Warnf("request exception on attempt %d", attempt+1)
		case status == http.StatusOK:
			raw, verr := c.checkResponse(respBody)
			if verr == nil {
				return raw, nil
			}
			lastErr, lastStatus = verr, status
			c.logger.WithField("url", url).Warn("invalid api response structure")
		case status == http.StatusUnauthorized:
			if authRetried {
				return nil, &RequestError{URL: url, Attempts: calls, Status: status, Err: ErrUnauthorized}
			}
			// Reload the token and retry without consuming an attempt or waiting.
			authRetried = true
			c.clearToken()
			c.logger.Debug("received 401, reloading credentials")
			attempt--
			continue
		default:
			lastErr, lastStatus = fmt.Errorf("unexpected status %d: %s", status, snippet(respBody)), status
			c.logger.WithField("status", status).Warnf("api request failed: %s", snippet(respBody))
		}

		if attempt < c.maxRetries-1 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, &RequestError{URL: url, Attempts: calls, Status: lastStatus, Err: lastErr}
}

// backoff is min(base * 2^attempt, max).
func (c *Client) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := c.baseDelay * time.Duration(1<<uint(attempt))
	if c.maxDelay > 0 && (d > c.maxDelay || d < 0) {
		d = c.maxDelay
	}
	return d
}

func (c *Client) post(ctx context.Context, url string, body []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, b, nil
}

func (c *Client) checkResponse(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidResponse
	}
	if c.validate && trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, ErrInvalidResponse
	}
	return json.RawMessage(trimmed), nil
}

// accessToken returns the cached token, loading it on first use or after it
// was cleared or its exp claim has passed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && (c.tokenExp.IsZero() || c.now().Before(c.tokenExp.Add(-tokenExpirySkew))) {
		return c.token, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExp = time.Time{}
	if exp, ok := tokenExpiry(token); ok {
		c.tokenExp = exp
		if !c.now().Before(exp) {
			c.logger.WithField("expired_at", exp).Warn("access token already expired; the desktop app may need to refresh it")
			// Keep using it; the 401 path reports the failure.
			c.tokenExp = time.Time{}
		}
	}
	return token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
