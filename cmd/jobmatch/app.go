package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/cache"
	"github.com/jonathan/jobmatch/internal/config"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/cvid"
	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/evaluation"
	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/fetch"
	"github.com/jonathan/jobmatch/internal/lifecycle"
	"github.com/jonathan/jobmatch/internal/llm"
	"github.com/jonathan/jobmatch/internal/notify"
	"github.com/jonathan/jobmatch/internal/pipeline"
	"github.com/jonathan/jobmatch/internal/queue"
	"github.com/jonathan/jobmatch/internal/urlnorm"
)

// app holds the components shared by the commands that touch storage.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	db         *db.DB
	redis      *cache.Redis
	normalizer *urlnorm.Normalizer
	cvs        *cvid.Provider
	lifecycle  *lifecycle.Service
	notifier   *notify.Telegram

	llmClient llm.Client
	gcs       *storage.Client
}

// loadConfig reads the --config file and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *log.Logger {
	if cfg.Verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// openApp loads configuration and connects to PostgreSQL, Redis and Telegram.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	normalizer, err := urlnorm.New(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}

	notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         database,
		redis:      cache.NewRedis(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, logger),
		normalizer: normalizer,
		cvs:        cvid.NewProvider(database, logger),
		notifier:   notifier,
	}
	a.lifecycle = lifecycle.NewService(database, notifier, logger)
	return a, nil
}

func (a *app) Close() {
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	if a.gcs != nil {
		_ = a.gcs.Close()
	}
	_ = a.redis.Close()
	a.db.Close()
}

// pageFetcher fetches detail pages through the Redis page cache, with the
// headless browser fallback when enabled.
func (a *app) pageFetcher() *fetch.Fetcher {
	opts := fetch.DefaultOptions()
	if t := a.cfg.PageTimeout(); t > 0 {
		opts.Timeout = t
	}
	fc := fetch.FetcherConfig{Options: opts, Logger: a.logger}
	if a.cfg.UseBrowser {
		fc.Renderer = fetch.NewRenderer(a.logger)
	}
	if a.redis.Enabled() {
		fc.Cache = a.redis
	}
	return fetch.NewFetcher(fc)
}

// seenCache fronts JobExists with Redis when it is reachable.
func (a *app) seenCache() *cache.SeenCache {
	var kv cache.KV
	if a.redis.Enabled() {
		kv = a.redis
	}
	return cache.NewSeenCache(a.db, kv, 0)
}

// evaluationService connects to the configured LLM provider.
func (a *app) evaluationService(ctx context.Context) (*evaluation.Service, error) {
	key := a.cfg.LLMAPIKey()
	if key == "" {
		return nil, fmt.Errorf("API key required for provider %s: set GEMINI_API_KEY or OPENAI_API_KEY", a.cfg.LLMProvider)
	}
	provider, err := llm.ParseProvider(a.cfg.LLMProvider)
	if err != nil {
		return nil, err
	}
	lc := llm.ConfigFor(provider)
	lc.MaxPromptTokens = a.cfg.MaxPromptTokens

	client, err := llm.NewClient(ctx, lc, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.llmClient = client
	return evaluation.NewService(client, llm.DefaultTokenBudget(), a.cfg.MaxPromptTokens, a.logger), nil
}

// queueStore returns the GCS queue when a bucket is configured, else the
// filesystem queue.
func (a *app) queueStore(ctx context.Context) (queue.Store, error) {
	if a.cfg.QueueBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.gcs = client
		return queue.NewGCSStore(client, a.cfg.QueueBucket, a.cfg.QueuePrefix, a.logger), nil
	}
	return queue.NewFileStore(a.cfg.QueueDir, a.logger)
}

// runnerOptions selects the optional pipeline parts a command needs.
type runnerOptions struct {
	evaluate bool // score listings during ingest and enable EvaluatePending
	letters  bool // draft motivation letters
	queue    bool // queue applications
}

// crawlDefaults are the crawl settings every run starts from.
func (a *app) crawlDefaults() crawl.Config {
	return crawl.Config{
		MaxPages:        a.cfg.MaxPages,
		PageTimeout:     a.cfg.PageTimeout(),
		ListingsPerPage: a.cfg.ListingsPerPage,
		CostPerItem:     a.cfg.CostPerItem,
	}
}

// runner wires the pipeline over the app's components.
func (a *app) runner(ctx context.Context, opts runnerOptions) (*pipeline.Runner, error) {
	seen := a.seenCache()
	source := extraction.NewCollySource(a.logger)
	if t := a.cfg.PageTimeout(); t > 0 {
		source.RequestTimeout = t
	}

	deps := pipeline.Deps{
		Orchestrator: crawl.New(crawl.Deps{
			Source:     source,
			Jobs:       seen,
			History:    a.db,
			Matches:    a.db,
			Normalizer: a.normalizer,
			Logger:     a.logger,
		}),
		CVs:      a.cvs,
		Matches:  a.db,
		Seen:     seen,
		Notifier: a.notifier,
		Logger:   a.logger,
	}

	if opts.evaluate || opts.letters {
		svc, err := a.evaluationService(ctx)
		if err != nil {
			return nil, err
		}
		if opts.evaluate {
			deps.Evaluator = evaluation.NewScorer(svc, a.cvs)
			deps.Pending = a.db
		}
		if opts.letters {
			details := extraction.NewDetailFetcher(a.pageFetcher())
			deps.Letters = evaluation.NewLetterWriter(svc, a.cvs, details, a.db, a.logger)
		}
	}
	if opts.queue {
		q, err := a.queueStore(ctx)
		if err != nil {
			return nil, err
		}
		deps.Bridge = bridge.New(a.db, q, a.normalizer, a.logger)
	}
	return pipeline.NewRunner(deps), nil
}

// defaultCommandTimeout bounds the short read/write commands.
const defaultCommandTimeout = 30 * time.Second

// commandContext bounds a CLI command. Zero timeout means none.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
