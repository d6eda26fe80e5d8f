package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *fakeClock) {
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	l.now = clock.Now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())

	// POST /crawl allows a burst of 2.
	for i := 0; i < 2; i++ {
		ok, info := l.Allow("10.0.0.1", "POST", "/crawl")
		require.True(t, ok, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
	}
	ok, info := l.Allow("10.0.0.1", "POST", "/crawl")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, float64(6*time.Minute), float64(info.RetryAfter), float64(time.Millisecond),
		"10 per hour refills one token every 6 minutes")
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(t, DefaultConfig())

	l.Allow("c", "POST", "/crawl")
	l.Allow("c", "POST", "/crawl")
	ok, _ := l.Allow("c", "POST", "/crawl")
	require.False(t, ok)

	clock.Advance(6*time.Minute + time.Second)
	ok, _ = l.Allow("c", "POST", "/crawl")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "POST", "/crawl")
	assert.False(t, ok)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())

	l.Allow("a", "POST", "/crawl")
	l.Allow("a", "POST", "/crawl")
	ok, _ := l.Allow("a", "POST", "/crawl")
	assert.False(t, ok)

	ok, _ = l.Allow("b", "POST", "/crawl")
	assert.True(t, ok)
}

func TestLimiter_PrefixRuleSharesBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []Rule{{Method: "PUT", Path: "/matches/", Limit: 2, Window: time.Minute}}
	l, _ := newTestLimiter(t, cfg)

	ok, _ := l.Allow("c", "PUT", "/matches/a/status")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "PUT", "/matches/b/status")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "PUT", "/matches/c/status")
	assert.False(t, ok)
}

func TestLimiter_SpecialCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		client string
		method string
		path   string
		want   bool
	}{
		{"health unlimited", nil, "c", "GET", "/health", true},
		{"disabled", func(c *Config) { c.Enabled = false }, "c", "POST", "/crawl", true},
		{"allowlisted", func(c *Config) { c.Allowlist["c"] = true }, "c", "POST", "/crawl", true},
		{"denylisted", func(c *Config) { c.Denylist["c"] = true }, "c", "GET", "/matches", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			l, _ := newTestLimiter(t, cfg)
			// Exhaust the crawl burst first so only the special case can allow.
			for i := 0; i < 5; i++ {
				l.Allow(tt.client, "POST", "/crawl")
			}
			ok, _ := l.Allow(tt.client, tt.method, tt.path)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestConfig_Match(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		method, path string
		wantPath     string
	}{
		{"POST", "/crawl", "/crawl"},
		{"PUT", "/matches/abc/status", "/matches/"},
		{"POST", "/matches/abc/notes", "/matches/"},
		{"GET", "/matches/abc", "*"},
		{"GET", "/crawl", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.wantPath, cfg.match(tt.method, tt.path).Path)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_ENABLED":        "false",
		"RATE_LIMIT_DEFAULT_LIMIT":  "50",
		"RATE_LIMIT_DEFAULT_WINDOW": "30s",
		"RATE_LIMIT_ALLOWLIST":      "127.0.0.1, ::1",
		"RATE_LIMIT_DENYLIST":       "",
	}
	cfg := ConfigFromEnv(func(k string) string { return env[k] })

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.Default.Limit)
	assert.Equal(t, 30*time.Second, cfg.Default.Window)
	assert.Equal(t, map[string]bool{"127.0.0.1": true, "::1": true}, cfg.Allowlist)
	assert.Empty(t, cfg.Denylist)
}

func TestConfigFromEnv_InvalidFallsBack(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_ENABLED":       "sometimes",
		"RATE_LIMIT_DEFAULT_LIMIT": "lots",
	}
	cfg := ConfigFromEnv(func(k string) string { return env[k] })

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1000, cfg.Default.Limit)
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(t, DefaultConfig())

	l.Allow("old", "GET", "/matches")
	clock.Advance(2 * time.Hour)
	l.Allow("new", "GET", "/matches")

	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
}

func TestLimiter_Concurrent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []Rule{{Method: "POST", Path: "/crawl", Limit: 50, Window: time.Hour}}
	l, _ := newTestLimiter(t, cfg)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "POST", "/crawl"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	l.Stop()
	assert.NotPanics(t, l.Stop)
}
