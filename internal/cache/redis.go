// Package cache provides an optional Redis layer. Every operation degrades to a
// no-op when Redis is unreachable so callers never depend on it for correctness.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a caller passes a non-positive ttl.
const DefaultTTL = 10 * time.Minute

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key written through this client.
	KeyPrefix string
}

// Redis is a nil-safe Redis client wrapper.
type Redis struct {
	client *redis.Client
	prefix string
	logger *log.Logger

	warnedUnavailable atomic.Bool
}

// NewRedis connects to Redis. When Addr is empty or the server does not answer
// a ping, a disabled client is returned and all calls bypass the cache.
func NewRedis(opts Options, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.Default()
	}
	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = "jobmatch"
	}

	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return &Redis{prefix: prefix, logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Printf("[CACHE] Redis unavailable at %s, bypassing cache: %v", addr, err)
		_ = client.Close()
		return &Redis{prefix: prefix, logger: logger}
	}

	logger.Printf("[CACHE] Connected to Redis at %s", addr)
	return &Redis{client: client, prefix: prefix, logger: logger}
}

// Enabled reports whether a live Redis connection is in use.
func (r *Redis) Enabled() bool {
	return r != nil && r.client != nil
}

// Close releases the connection.
func (r *Redis) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Printf("[CACHE] Redis error, continuing without cache: %v", err)
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis unavailable")
	}
	return r.client.Ping(ctx).Err()
}

// GetBytes returns the stored value and whether it was present.
func (r *Redis) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.Enabled() {
		return nil, false, nil
	}
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		r.warnUnavailableOnce(err)
		return nil, false, err
	}
	return b, true, nil
}

// SetBytes stores a value with a ttl.
func (r *Redis) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

// GetJSON decodes a stored JSON value into out.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	b, ok, err := r.GetBytes(ctx, key)
	if err != nil || !ok || len(b) == 0 {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes value as JSON and stores it.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.SetBytes(ctx, key, b, ttl)
}

// SetIfNotExists sets key only when absent. Returns false when Redis is disabled.
func (r *Redis) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return false, err
	}
	return ok, nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if !r.Enabled() {
		return nil
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}
