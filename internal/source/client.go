package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0"
	maxBodyBytes     = 16 << 20
)

// Client performs rate-limited GETs with a fixed User-Agent. SEC rejects
// requests without a descriptive agent and caps clients at 10 requests per
// second, so every host gets its own limiter.
type Client struct {
	http      *http.Client
	userAgent string
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limit = rate.Limit(perSecond)
		c.burst = burst
	}
}

func NewClient(userAgent string, opts ...Option) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		limit:     10,
		burst:     5,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = l
	}
	return l
}

// Get fetches rawURL and returns the body. Non-2xx responses are errors.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: status %d: %s", u.Host, resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
