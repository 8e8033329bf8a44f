package ghapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/collabscout/collabscout/internal/store"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func httpResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type memCache struct {
	entries map[string]*store.CacheEntry
	touched []time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*store.CacheEntry{}}
}

func (m *memCache) GetCacheEntry(_ context.Context, key string) (*store.CacheEntry, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (m *memCache) PutCacheEntry(_ context.Context, e *store.CacheEntry) error {
	m.entries[e.CacheKey] = e
	return nil
}

func (m *memCache) TouchCacheEntry(_ context.Context, key string, fetchedAt time.Time) error {
	if e, ok := m.entries[key]; ok {
		e.FetchedAt = fetchedAt
	}
	m.touched = append(m.touched, fetchedAt)
	return nil
}

// testClient returns a client with a synthetic clock: Sleep records the
// duration and advances the clock instead of blocking.
func testClient(rt roundTripFunc) (*Client, *[]time.Duration) {
	c := NewClient("", nil)
	c.HTTP = &http.Client{Transport: rt}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }
	// Rebase the buckets on the synthetic clock.
	c.buckets = map[string]*tokenBucket{
		BucketSearch: newTokenBucket(BucketSearch, 30, time.Minute, now),
		BucketCore:   newTokenBucket(BucketCore, 5000, time.Hour, now),
	}
	var sleeps []time.Duration
	c.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return nil
	}
	return c, &sleeps
}

func TestTokenBucketWaitFormula(t *testing.T) {
	t0 := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	b := newTokenBucket("search", 30, time.Minute, t0)

	for i := 0; i < 30; i++ {
		if wait := b.consume(t0); wait != 0 {
			t.Fatalf("consume %d: wait = %v, want 0", i, wait)
		}
	}

	// Empty bucket refills 30 tokens per minute, 0.0005 tokens per ms.
	if wait := b.consume(t0); wait != 2*time.Second {
		t.Errorf("empty bucket wait = %v, want 2s", wait)
	}

	// One second later half a token has accrued.
	if wait := b.consume(t0.Add(time.Second)); wait != time.Second {
		t.Errorf("half-refilled wait = %v, want 1s", wait)
	}

	// After the full wait a token is available again.
	if wait := b.consume(t0.Add(3 * time.Second)); wait != 0 {
		t.Errorf("post-refill wait = %v, want 0", wait)
	}
}

func TestTokenBucketClampsToCapacity(t *testing.T) {
	t0 := time.Now()
	b := newTokenBucket("core", 5, time.Hour, t0)
	b.consume(t0)
	b.refill(t0.Add(48 * time.Hour))
	if b.tokens != 5 {
		t.Errorf("tokens = %v, want clamped to 5", b.tokens)
	}
}

func TestRetryAfterHeaderDrivesWait(t *testing.T) {
	calls := 0
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		h := http.Header{}
		h.Set("Retry-After", "7")
		return httpResponse(429, `{"message":"rate limited"}`, h), nil
	})

	var events []ThrottleEvent
	c.OnThrottle = func(ev ThrottleEvent) { events = append(events, ev) }

	_, err := c.Do(context.Background(), Request{Path: "/rate_limit"})
	require.Error(t, err)

	var ge *Error
	require.True(t, errors.As(err, &ge))
	require.Equal(t, KindRateLimited, ge.Kind)
	require.EqualValues(t, 7000, ge.RetryAfterMs)

	// Three retries then terminal: four requests, three sleeps of exactly 7s.
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second}, *sleeps)

	require.Len(t, events, 4)
	for _, ev := range events {
		require.Equal(t, Reason429, ev.Reason)
	}
}

func TestRateLimitResetHeaderDrivesWait(t *testing.T) {
	reset := time.Date(2026, 8, 24, 12, 1, 30, 0, time.UTC)
	calls := 0
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{}
			h.Set("X-RateLimit-Reset", "1787572890") // 2026-08-24T12:01:30Z
			return httpResponse(403, "", h), nil
		}
		return httpResponse(200, "{}", nil), nil
	})

	var events []ThrottleEvent
	c.OnThrottle = func(ev ThrottleEvent) { events = append(events, ev) }

	resp, err := c.Do(context.Background(), Request{Path: "/user"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)

	// 90s until reset plus the one-second buffer.
	require.Equal(t, []time.Duration{91 * time.Second}, *sleeps)
	require.Len(t, events, 1)
	require.Equal(t, Reason403, events[0].Reason)
	require.True(t, events[0].Reset.Equal(reset))
}

func TestThrottleFallsBackToSixtySeconds(t *testing.T) {
	calls := 0
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpResponse(429, "", nil), nil
		}
		return httpResponse(200, "{}", nil), nil
	})

	_, err := c.Do(context.Background(), Request{Path: "/rate_limit"})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{60 * time.Second}, *sleeps)
}

func TestServerErrorExponentialBackoff(t *testing.T) {
	calls := 0
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return httpResponse(502, "bad gateway", nil), nil
		}
		return httpResponse(200, "{}", nil), nil
	})

	resp, err := c.Do(context.Background(), Request{Path: "/rate_limit"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestServerErrorRetriesExhausted(t *testing.T) {
	calls := 0
	c, _ := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return httpResponse(503, "down", nil), nil
	})

	_, err := c.Do(context.Background(), Request{Path: "/rate_limit"})
	var ge *Error
	require.True(t, errors.As(err, &ge))
	require.Equal(t, KindHTTP, ge.Kind)
	require.Equal(t, 503, ge.Status)
	require.Equal(t, 4, calls)
}

func TestNotFoundFailsFast(t *testing.T) {
	calls := 0
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return httpResponse(404, `{"message":"Not Found"}`, nil), nil
	})

	_, err := c.Do(context.Background(), Request{Path: "/repos/x/y/readme"})
	require.True(t, IsStatus(err, 404))
	require.Equal(t, 1, calls)
	require.Empty(t, *sleeps)
}

func TestConditionalGetServesCacheOn304(t *testing.T) {
	cache := newMemCache()
	calls := 0
	var sawETag string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{}
			h.Set("ETag", `"v1"`)
			return httpResponse(200, `{"items":[1,2,3]}`, h), nil
		}
		sawETag = r.Header.Get("If-None-Match")
		return httpResponse(304, "", nil), nil
	})
	c, _ := testClient(rt)
	c.Cache = cache

	first, err := c.Do(context.Background(), Request{Path: "/search/repositories", Bucket: BucketSearch})
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := c.Do(context.Background(), Request{Path: "/search/repositories", Bucket: BucketSearch})
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, 200, second.Status)
	require.Equal(t, first.Body, second.Body)
	require.Equal(t, `"v1"`, sawETag)

	// The 304 refreshed fetched_at without rewriting the entry.
	require.Len(t, cache.entries, 1)
	require.Len(t, cache.touched, 1)
}

func TestBucketEmptyThrottleEvent(t *testing.T) {
	c, sleeps := testClient(func(r *http.Request) (*http.Response, error) {
		return httpResponse(200, "{}", nil), nil
	})
	var events []ThrottleEvent
	c.OnThrottle = func(ev ThrottleEvent) { events = append(events, ev) }

	// Drain the search bucket with the fixed clock, then issue one more.
	ctx := context.Background()
	for i := 0; i < 31; i++ {
		_, err := c.Do(ctx, Request{Path: "/search/repositories", Bucket: BucketSearch})
		require.NoError(t, err)
	}

	require.NotEmpty(t, events)
	require.Equal(t, ReasonBucketEmpty, events[0].Reason)
	require.Equal(t, BucketSearch, events[0].Bucket)
	require.NotEmpty(t, *sleeps)
}
