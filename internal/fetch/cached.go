package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"
)

// DefaultPageCacheTTL is how long fetched detail pages are reused.
const DefaultPageCacheTTL = 24 * time.Hour

// PageCache stores fetched pages. *cache.Redis satisfies it.
type PageCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PageRenderer renders client-side pages. *Renderer satisfies it.
type PageRenderer interface {
	Render(ctx context.Context, url string) (*Result, error)
}

// Fetcher fetches job pages over HTTP, falls back to a headless browser when the
// page text is too short, and caches successful results.
type Fetcher struct {
	options  *Options
	renderer PageRenderer
	cache    PageCache
	cacheTTL time.Duration
	logger   *log.Logger
}

// FetcherConfig holds configuration for the fetcher. Nil Renderer disables the
// browser fallback; nil Cache disables caching.
type FetcherConfig struct {
	Options  *Options
	Renderer PageRenderer
	Cache    PageCache
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Options == nil {
		cfg.Options = DefaultOptions()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultPageCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Fetcher{
		options:  cfg.Options,
		renderer: cfg.Renderer,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
	}
}

// Fetch returns the page at urlStr with Text filled from the board's content
// selectors.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	key := pageCacheKey(urlStr)
	if f.cache != nil {
		if b, ok, err := f.cache.GetBytes(ctx, key); err == nil && ok {
			var cached Result
			if err := json.Unmarshal(b, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	board := DetectBoard(urlStr)
	result, err := URL(ctx, urlStr, f.options)
	if err != nil && f.renderer == nil {
		return nil, err
	}
	if err == nil {
		result.Text, _ = ExtractMainText(result.HTML, ContentSelectors(board), NoiseSelectors(board)...)
	}

	if f.renderer != nil && (err != nil || ShouldUseBrowser(result.Text)) {
		if err != nil {
			f.logger.Printf("[FETCH] HTTP fetch failed for %s, trying browser: %v", urlStr, err)
		}
		rendered, rerr := f.renderer.Render(ctx, urlStr)
		if rerr != nil {
			if err != nil {
				return nil, err
			}
			f.logger.Printf("[FETCH] Browser fallback failed for %s: %v", urlStr, rerr)
		} else {
			rendered.Text, _ = ExtractMainText(rendered.HTML, ContentSelectors(board), NoiseSelectors(board)...)
			result = rendered
		}
	}

	if f.cache != nil {
		if b, err := json.Marshal(result); err == nil {
			_ = f.cache.SetBytes(ctx, key, b, f.cacheTTL)
		}
	}
	return result, nil
}

func pageCacheKey(urlStr string) string {
	h := sha256.Sum256([]byte(urlStr))
	return "page:" + hex.EncodeToString(h[:12])
}
