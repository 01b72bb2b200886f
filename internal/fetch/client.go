// Package fetch wraps outbound HTTP calls with per-source rate limiting,
// retries with exponential backoff, and attempt logging. Every external
// provider in the pipeline goes through this client so the "log all
// requests and skip unavailable sources" contract holds in one place.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultMinInterval is the minimum gap between consecutive calls to
	// the same source when no per-source override is configured.
	DefaultMinInterval = 500 * time.Millisecond

	defaultMaxRetries  = 3
	defaultBackoffBase = 1500 * time.Millisecond
	defaultTimeout     = 30 * time.Second
)

// Error is the typed failure returned by the client. Transient errors were
// retried until the retry ceiling; permanent errors were surfaced
// immediately.
type Error struct {
	Source    string
	Status    int // HTTP status, 0 for network-level failures
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch.Error classified as transient.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Transient
}

// Config controls retry, backoff and throttling behaviour.
type Config struct {
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // first backoff; doubles each retry
	Timeout     time.Duration // per-attempt timeout
	MinInterval time.Duration // default per-source minimum inter-call gap
	// MinIntervals overrides MinInterval for specific source IDs.
	MinIntervals map[string]time.Duration
	UserAgent    string
	// Jitter disables randomized backoff when false (tests).
	Jitter bool
}

// Client is the shared rate-limited HTTP client. It is safe for concurrent
// use: limiter state per source is shared by all pipeline workers so the
// minimum-interval guarantee holds globally, not per worker.
type Client struct {
	http *http.Client
	cfg  Config
	log  zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a fetch client. Zero-valued Config fields fall back to
// package defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		log:      log.With().Str("component", "fetch").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Request describes one outbound call.
type Request struct {
	Source  string // source ID used for rate limiting and logging
	URL     string
	Params  url.Values
	Headers map[string]string
	Cookies map[string]string
}

// limiter returns the shared limiter for a source, creating it on first use.
func (c *Client) limiter(source string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[source]; ok {
		return lim
	}
	interval := c.cfg.MinInterval
	if override, ok := c.cfg.MinIntervals[source]; ok && override > 0 {
		interval = override
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	c.limiters[source] = lim
	return lim
}

// Get performs a GET with throttling and retries and returns the response
// body. Transient failures (network errors, timeouts, 429 and 5xx) are
// retried up to the configured ceiling with exponential backoff; all other
// HTTP errors surface immediately as permanent.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	target := req.URL
	if len(req.Params) > 0 {
		target = req.URL + "?" + req.Params.Encode()
	}

	var lastErr *Error
	maxAttempts := c.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter(req.Source).Wait(ctx); err != nil {
			return nil, &Error{Source: req.Source, Transient: false, Err: err}
		}

		body, fetchErr := c.attempt(ctx, req.Source, target, req.Headers, req.Cookies, attempt)
		if fetchErr == nil {
			return body, nil
		}
		lastErr = fetchErr
		if !fetchErr.Transient || attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, attempt); err != nil {
			return nil, &Error{Source: req.Source, Transient: false, Err: err}
		}
	}
	return nil, lastErr
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, source, target string, headers, cookies map[string]string, attempt int) ([]byte, *Error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Source: source, Transient: false, Err: err}
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range cookies {
		httpReq.AddCookie(&http.Cookie{Name: k, Value: v})
	}

	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		// Network error or timeout - transient unless the caller
		// cancelled.
		transient := ctx.Err() == nil
		c.logAttempt(source, target, attempt, latency, 0, err)
		return nil, &Error{Source: source, Transient: transient, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	c.logAttempt(source, target, attempt, latency, resp.StatusCode, readErr)

	switch {
	case readErr != nil:
		return nil, &Error{Source: source, Status: resp.StatusCode, Transient: true, Err: readErr}
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case isTransientStatus(resp.StatusCode):
		return nil, &Error{
			Source: source, Status: resp.StatusCode, Transient: true,
			Err: fmt.Errorf("server returned %s", resp.Status),
		}
	default:
		return nil, &Error{
			Source: source, Status: resp.StatusCode, Transient: false,
			Err: fmt.Errorf("server returned %s", resp.Status),
		}
	}
}

// isTransientStatus reports whether an HTTP status is worth retrying.
// 429 and 5xx are transient; every other non-200 is permanent.
func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// sleep waits out the exponential backoff for the given attempt number,
// honouring cancellation.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.cfg.BackoffBase << (attempt - 1)
	if half := int64(delay) / 2; c.cfg.Jitter && half > 0 {
		delay += time.Duration(rand.Int63n(half))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logAttempt(source, target string, attempt int, latency time.Duration, status int, err error) {
	evt := c.log.Info()
	if err != nil || (status != http.StatusOK && status != 0) {
		evt = c.log.Warn()
	}
	evt.Str("source", source).
		Str("url", target).
		Int("attempt", attempt).
		Int("status", status).
		Dur("latency", latency)
	if err != nil {
		evt = evt.AnErr("error", err)
	}
	evt.Msg("Request")
}
