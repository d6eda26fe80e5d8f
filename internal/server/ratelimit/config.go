package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// Rule limits one method on a path. A Path ending in "/" matches every path
// below it.
type Rule struct {
	Method string
	Path   string
	Limit  int           // Requests per Window; 0 means unlimited
	Window time.Duration
	Burst  int // Bucket capacity; defaults to Limit
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Default         Rule
	CleanupInterval time.Duration
	IdleTTL         time.Duration // Buckets unused this long are dropped
	Allowlist       map[string]bool
	Denylist        map[string]bool
	Rules           []Rule
}

// DefaultRules returns the per-route limits. Runs that start crawls or call
// the LLM are the tightest.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "POST", Path: "/crawl", Limit: 10, Window: time.Hour, Burst: 2},
		{Method: "POST", Path: "/letters", Limit: 20, Window: time.Hour, Burst: 5},
		{Method: "POST", Path: "/bridge", Limit: 30, Window: time.Hour, Burst: 5},
		{Method: "POST", Path: "/email/check", Limit: 120, Window: time.Minute, Burst: 20},
		{Method: "PUT", Path: "/matches/", Limit: 300, Window: time.Minute, Burst: 30},
		{Method: "POST", Path: "/matches/", Limit: 300, Window: time.Minute, Burst: 30},
		{Method: "GET", Path: "/health"},
	}
}

// DefaultConfig returns an enabled configuration with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Default:         Rule{Limit: 1000, Window: time.Minute},
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Allowlist:       map[string]bool{},
		Denylist:        map[string]bool{},
		Rules:           DefaultRules(),
	}
}

// ConfigFromEnv builds a Config from RATE_LIMIT_* variables read through getenv.
// Unparseable values fall back to the defaults.
func ConfigFromEnv(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if v, err := strconv.ParseBool(getenv("RATE_LIMIT_ENABLED")); err == nil {
		cfg.Enabled = v
	}
	if v, err := strconv.Atoi(getenv("RATE_LIMIT_DEFAULT_LIMIT")); err == nil && v >= 0 {
		cfg.Default.Limit = v
	}
	if v, err := time.ParseDuration(getenv("RATE_LIMIT_DEFAULT_WINDOW")); err == nil && v > 0 {
		cfg.Default.Window = v
	}
	if v, err := time.ParseDuration(getenv("RATE_LIMIT_CLEANUP_INTERVAL")); err == nil && v >= 0 {
		cfg.CleanupInterval = v
	}
	cfg.Allowlist = parseList(getenv("RATE_LIMIT_ALLOWLIST"))
	cfg.Denylist = parseList(getenv("RATE_LIMIT_DENYLIST"))
	return cfg
}

func parseList(list string) map[string]bool {
	out := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = true
		}
	}
	return out
}

// match returns the rule for method and path. Exact paths win over prefixes.
func (c *Config) match(method, path string) Rule {
	var prefix *Rule
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.Method != method {
			continue
		}
		if r.Path == path {
			return *r
		}
		if prefix == nil && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			prefix = r
		}
	}
	if prefix != nil {
		return *prefix
	}
	d := c.Default
	d.Method, d.Path = method, "*"
	return d
}
