// Package ghapi is a read-only GitHub REST client with a persistent
// conditional-GET cache, token-bucket rate limiting, and header-driven
// backoff on upstream throttles.
package ghapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/collabscout/collabscout/internal/store"
	"github.com/collabscout/collabscout/internal/telemetry"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	// DefaultAccept is the GitHub JSON media type.
	DefaultAccept = "application/vnd.github+json"
	// RawAccept fetches blob content (README) as raw bytes.
	RawAccept = "application/vnd.github.raw"

	apiVersion       = "2022-11-28"
	defaultUserAgent = "collabscout"

	// maxRateLimitRetries bounds 429/403 retry sleeps per request.
	maxRateLimitRetries = 3
	// maxServerRetries bounds 5xx retries per request.
	maxServerRetries = 3

	maxResponseSize = 50 * 1024 * 1024
)

// Bucket names.
const (
	BucketSearch = "search"
	BucketCore   = "core"
)

// Throttle reason codes, recorded verbatim in audit events.
const (
	ReasonBucketEmpty = "token_bucket_empty"
	Reason429         = "rate_limit_429"
	Reason403         = "secondary_rate_limit_403"
)

// ThrottleEvent describes one wait imposed by rate limiting.
type ThrottleEvent struct {
	Bucket string
	Wait   time.Duration
	Reason string
	Reset  time.Time // zero when upstream supplied no reset
}

// Cache is the persistent response cache. *store.Store satisfies it.
type Cache interface {
	GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e *store.CacheEntry) error
	TouchCacheEntry(ctx context.Context, key string, fetchedAt time.Time) error
}

// Request describes one API call.
type Request struct {
	Path   string
	Accept string // defaults to DefaultAccept
	Bucket string // defaults to BucketCore
	Params url.Values
}

// Response is the normalized result. A 304 served from cache reports
// status 200 with FromCache set.
type Response struct {
	Status    int
	Body      []byte
	Header    http.Header
	FromCache bool
}

// Client issues read-only GitHub calls. Clock, sleep and transport are
// injectable for tests.
type Client struct {
	BaseURL   string
	Token     string
	UserAgent string

	HTTP       *http.Client
	Cache      Cache
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
	OnThrottle func(ThrottleEvent)

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewClient creates a client with the documented bucket sizes:
// search 30/minute, core 5000/hour.
func NewClient(token string, cache Cache) *Client {
	now := time.Now()
	c := &Client{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: defaultUserAgent,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Cache:     cache,
		Now:       time.Now,
		Sleep:     sleepContext,
		buckets: map[string]*tokenBucket{
			BucketSearch: newTokenBucket(BucketSearch, 30, time.Minute, now),
			BucketCore:   newTokenBucket(BucketCore, 5000, time.Hour, now),
		},
	}
	ghMetricsOnce.Do(initGHMetrics)
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// CacheKey derives the persistent cache key for a request.
func CacheKey(method, fullURL, accept string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s %s accept=%s", method, fullURL, accept)))
	return hex.EncodeToString(sum[:])
}

var ghMetrics struct {
	requests  metric.Int64Counter
	throttles metric.Int64Counter
	duration  metric.Float64Histogram
}

var ghMetricsOnce sync.Once

func initGHMetrics() {
	m := telemetry.Meter("github.com/collabscout/collabscout/ghapi")
	ghMetrics.requests, _ = m.Int64Counter("cs.github.requests",
		metric.WithDescription("GitHub API requests issued"))
	ghMetrics.throttles, _ = m.Int64Counter("cs.github.throttles",
		metric.WithDescription("Rate-limit waits observed"))
	ghMetrics.duration, _ = m.Float64Histogram("cs.github.request.duration",
		metric.WithDescription("GitHub API request duration in milliseconds"),
		metric.WithUnit("ms"))
}

func (c *Client) emitThrottle(ctx context.Context, ev ThrottleEvent) {
	if ghMetrics.throttles != nil {
		ghMetrics.throttles.Add(ctx, 1, metric.WithAttributes(
			attribute.String("cs.github.bucket", ev.Bucket),
			attribute.String("cs.github.reason", ev.Reason),
		))
	}
	if c.OnThrottle != nil {
		c.OnThrottle(ev)
	}
}

// waitForToken blocks until the named bucket yields a token.
func (c *Client) waitForToken(ctx context.Context, bucket string) error {
	for {
		c.mu.Lock()
		b, ok := c.buckets[bucket]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("unknown rate-limit bucket %q", bucket)
		}
		wait := b.consume(c.Now())
		c.mu.Unlock()

		if wait == 0 {
			return nil
		}
		c.emitThrottle(ctx, ThrottleEvent{Bucket: bucket, Wait: wait, Reason: ReasonBucketEmpty})
		if err := c.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// throttleWait derives the backoff for a 429/403 from response headers:
// Retry-After seconds, else X-RateLimit-Reset epoch plus one second of
// buffer, else sixty seconds.
func (c *Client) throttleWait(h http.Header) (time.Duration, time.Time) {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second, time.Time{}
		}
	}
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			resetAt := time.Unix(epoch, 0)
			wait := resetAt.Sub(c.Now())
			if wait < 0 {
				wait = 0
			}
			return wait + time.Second, resetAt
		}
	}
	return 60 * time.Second, time.Time{}
}

// Do executes one request with caching, rate limiting and bounded retries.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	accept := req.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	bucket := req.Bucket
	if bucket == "" {
		bucket = BucketCore
	}

	fullURL := c.BaseURL + req.Path
	if len(req.Params) > 0 {
		fullURL += "?" + req.Params.Encode()
	}
	key := CacheKey(http.MethodGet, fullURL, accept)

	var cached *store.CacheEntry
	if c.Cache != nil {
		if e, err := c.Cache.GetCacheEntry(ctx, key); err == nil {
			cached = e
		}
	}

	rateLimitRetries := 0
	serverRetries := 0
	for {
		if err := c.waitForToken(ctx, bucket); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.Token)
		}
		httpReq.Header.Set("Accept", accept)
		httpReq.Header.Set("X-GitHub-Api-Version", apiVersion)
		httpReq.Header.Set("User-Agent", c.UserAgent)
		if cached != nil {
			if cached.ETag != "" {
				httpReq.Header.Set("If-None-Match", cached.ETag)
			}
			if cached.LastModified != "" {
				httpReq.Header.Set("If-Modified-Since", cached.LastModified)
			}
		}

		t0 := c.Now()
		resp, err := c.HTTP.Do(httpReq)
		if ghMetrics.requests != nil {
			ghMetrics.requests.Add(ctx, 1, metric.WithAttributes(
				attribute.String("cs.github.bucket", bucket)))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if serverRetries >= maxServerRetries {
				return nil, &Error{Kind: KindNetwork, Body: err.Error()}
			}
			backoff := time.Duration(1<<serverRetries) * time.Second
			serverRetries++
			if err := c.Sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if ghMetrics.duration != nil {
			ghMetrics.duration.Record(ctx, float64(c.Now().Sub(t0).Milliseconds()))
		}
		if readErr != nil {
			return nil, &Error{Kind: KindNetwork, Body: readErr.Error()}
		}

		switch {
		case resp.StatusCode == http.StatusNotModified && cached != nil:
			if c.Cache != nil {
				if err := c.Cache.TouchCacheEntry(ctx, key, c.Now()); err != nil {
					return nil, err
				}
			}
			return &Response{Status: http.StatusOK, Body: cached.Body, Header: resp.Header, FromCache: true}, nil

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if c.Cache != nil {
				entry := &store.CacheEntry{
					CacheKey:     key,
					Method:       http.MethodGet,
					URL:          fullURL,
					Status:       resp.StatusCode,
					ETag:         resp.Header.Get("ETag"),
					LastModified: resp.Header.Get("Last-Modified"),
					Body:         body,
					FetchedAt:    c.Now(),
				}
				if err := c.Cache.PutCacheEntry(ctx, entry); err != nil {
					return nil, err
				}
			}
			return &Response{Status: resp.StatusCode, Body: body, Header: resp.Header}, nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
			wait, reset := c.throttleWait(resp.Header)
			reason := Reason429
			if resp.StatusCode == http.StatusForbidden {
				reason = Reason403
			}
			c.emitThrottle(ctx, ThrottleEvent{Bucket: bucket, Wait: wait, Reason: reason, Reset: reset})
			if rateLimitRetries >= maxRateLimitRetries {
				return nil, &Error{
					Kind:         KindRateLimited,
					Status:       resp.StatusCode,
					RetryAfterMs: wait.Milliseconds(),
					Body:         string(body),
				}
			}
			rateLimitRetries++
			if err := c.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			if serverRetries >= maxServerRetries {
				return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Body: string(body)}
			}
			backoff := time.Duration(1<<serverRetries) * time.Second
			serverRetries++
			if err := c.Sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue

		default:
			return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Body: string(body)}
		}
	}
}
