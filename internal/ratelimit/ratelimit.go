// Package ratelimit provides HTTP rate limit handling for the REST backend.
//
// Requests are never retried. A 429 response is turned into a RateLimitError
// carrying the server's Retry-After, and further requests fail fast until
// that window has passed.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultCooldown is used when a 429 response carries no usable Retry-After.
const DefaultCooldown = 5 * time.Second

// Config holds configuration for the rate-limiting HTTP client.
type Config struct {
	// HTTPClient performs the requests. Default: a client with Timeout.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Default: 30 seconds
	Timeout time.Duration

	// Cooldown applies when the server sends no Retry-After.
	// Default: DefaultCooldown
	Cooldown time.Duration

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats

	// Backend name for error messages and logging.
	Backend string

	// now is overridden in tests.
	now func() time.Time
}

// Client is an HTTP client that turns 429 responses into errors and
// refuses to send while a Retry-After window is open.
type Client struct {
	httpClient *http.Client
	cooldown   time.Duration
	stats      *Stats
	backend    string
	now        func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewClient creates a new rate-limiting HTTP client with the given configuration.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	now := cfg.now
	if now == nil {
		now = time.Now
	}

	return &Client{
		httpClient: httpClient,
		cooldown:   cooldown,
		stats:      cfg.Stats,
		backend:    cfg.Backend,
		now:        now,
	}
}

// Do sends req once. While a previous Retry-After window is still open it
// returns a RateLimitError without touching the network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if wait := c.remaining(); wait > 0 {
		return nil, &RateLimitError{Backend: c.backend, RetryAfter: wait}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	_ = resp.Body.Close()

	wait := c.cooldown
	if retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After")); retryAfter != nil {
		wait = *retryAfter
	}

	c.mu.Lock()
	c.blockedUntil = c.now().Add(wait)
	c.mu.Unlock()

	if c.stats != nil {
		c.stats.RecordRateLimit()
	}

	return nil, &RateLimitError{Backend: c.backend, RetryAfter: wait}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blockedUntil.IsZero() {
		return 0
	}
	wait := c.blockedUntil.Sub(c.now())
	if wait <= 0 {
		c.blockedUntil = time.Time{}
		return 0
	}
	return wait
}

// RateLimitError is returned for a 429 response or while its window is open.
type RateLimitError struct {
	Backend    string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	backend := e.Backend
	if backend == "" {
		backend = "API"
	}
	return fmt.Sprintf("%s rate limit exceeded, retry in %s", backend, e.RetryAfter.Round(time.Second))
}

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Stats tracks rate limit statistics for a backend.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
