package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultSeenTTL bounds how long a positive existence answer is kept.
const DefaultSeenTTL = 7 * 24 * time.Hour

// ExistenceChecker is the authoritative job lookup, normally *db.DB.
type ExistenceChecker interface {
	JobExists(ctx context.Context, url, searchTerm, cvKey string) (bool, error)
}

// KV is the subset of Redis used by SeenCache.
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SeenCache answers JobExists from Redis when possible. Only positive answers
// are cached: job matches are append-only, so "exists" never becomes false,
// while "missing" may change at any moment.
type SeenCache struct {
	checker ExistenceChecker
	kv      KV
	ttl     time.Duration
}

// NewSeenCache wraps checker. A nil kv disables caching.
func NewSeenCache(checker ExistenceChecker, kv KV, ttl time.Duration) *SeenCache {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &SeenCache{checker: checker, kv: kv, ttl: ttl}
}

// JobExists checks the cache, then the checker. Cache errors fall through to
// the checker.
func (s *SeenCache) JobExists(ctx context.Context, url, searchTerm, cvKey string) (bool, error) {
	key := SeenKey(url, searchTerm, cvKey)
	if s.kv != nil {
		if _, ok, err := s.kv.GetBytes(ctx, key); err == nil && ok {
			return true, nil
		}
	}

	exists, err := s.checker.JobExists(ctx, url, searchTerm, cvKey)
	if err != nil {
		return false, err
	}
	if exists {
		s.MarkSeen(ctx, url, searchTerm, cvKey)
	}
	return exists, nil
}

// MarkSeen records that the triple is stored. Errors are ignored.
func (s *SeenCache) MarkSeen(ctx context.Context, url, searchTerm, cvKey string) {
	if s.kv == nil {
		return
	}
	_ = s.kv.SetBytes(ctx, SeenKey(url, searchTerm, cvKey), []byte("1"), s.ttl)
}

// SeenKey derives the cache key for a (url, searchTerm, cvKey) triple.
func SeenKey(url, searchTerm, cvKey string) string {
	h := sha256.Sum256([]byte(searchTerm + "\x00" + cvKey + "\x00" + url))
	return "seen:" + hex.EncodeToString(h[:12])
}
