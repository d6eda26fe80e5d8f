// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed by pointer to every component.
// All fields can come from a JSON file; environment variables override it.
type Config struct {
	// Storage
	DatabaseURL   string `json:"database_url,omitempty"`   // PostgreSQL connection URL
	RedisAddr     string `json:"redis_addr,omitempty"`     // Optional seen-URL cache
	RedisPassword string `json:"redis_password,omitempty"` // Redis AUTH password

	// Crawl
	BaseURL            string  `json:"base_url,omitempty"`             // Job board base for relative links
	MaxPages           int     `json:"max_pages,omitempty"`            // Page budget per run
	ListingsPerPage    int     `json:"listings_per_page,omitempty"`    // Savings estimate input
	CostPerItem        float64 `json:"cost_per_item,omitempty"`        // Savings estimate input
	PageTimeoutSeconds int     `json:"page_timeout_seconds,omitempty"` // Per page fetch timeout
	Concurrency        int     `json:"concurrency,omitempty"`          // Independent runs in parallel
	UseBrowser         bool    `json:"use_browser,omitempty"`          // Headless browser fallback for SPA pages
	ProfilesPath       string  `json:"profiles_path,omitempty"`        // YAML search profiles

	// Evaluation
	LLMProvider     string `json:"llm_provider,omitempty"`      // gemini or openai
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`    // Gemini API key
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`    // OpenAI API key
	MaxPromptTokens int    `json:"max_prompt_tokens,omitempty"` // Job text budget per prompt

	// Queue
	QueueDir    string `json:"queue_dir,omitempty"`    // Filesystem queue root
	QueueBucket string `json:"queue_bucket,omitempty"` // GCS bucket; overrides QueueDir when set
	QueuePrefix string `json:"queue_prefix,omitempty"` // Object prefix inside the bucket

	// Notifications
	TelegramToken  string `json:"telegram_token,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`

	// Server
	Port               int    `json:"port,omitempty"`
	JWTSecret          string `json:"jwt_secret,omitempty"`
	JWTExpirationHours int    `json:"jwt_expiration_hours,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BaseURL:            "https://www.stepstone.de",
		MaxPages:           10,
		ListingsPerPage:    25,
		CostPerItem:        0.0016,
		PageTimeoutSeconds: 30,
		Concurrency:        2,
		LLMProvider:        "gemini",
		MaxPromptTokens:    6000,
		QueueDir:           "queue",
		Port:               8080,
		JWTExpirationHours: 24,
	}
}

// Load builds the configuration: defaults, then the optional JSON file at
// path, then .env and the process environment. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = file.MergeWithDefaults(cfg)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("JOB_BASE_URL", &c.BaseURL)
	str("PROFILES_PATH", &c.ProfilesPath)
	str("LLM_PROVIDER", &c.LLMProvider)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("QUEUE_DIR", &c.QueueDir)
	str("QUEUE_BUCKET", &c.QueueBucket)
	str("QUEUE_PREFIX", &c.QueuePrefix)
	str("TELEGRAM_BOT_TOKEN", &c.TelegramToken)
	str("JWT_SECRET", &c.JWTSecret)

	for key, dst := range map[string]*int{
		"MAX_PAGES":            &c.MaxPages,
		"LISTINGS_PER_PAGE":    &c.ListingsPerPage,
		"PAGE_TIMEOUT_SECONDS": &c.PageTimeoutSeconds,
		"CRAWL_CONCURRENCY":    &c.Concurrency,
		"MAX_PROMPT_TOKENS":    &c.MaxPromptTokens,
		"PORT":                 &c.Port,
		"JWT_EXPIRATION_HOURS": &c.JWTExpirationHours,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(getenv("COST_PER_ITEM")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid COST_PER_ITEM: %w", err)
		}
		c.CostPerItem = f
	}
	if v := strings.TrimSpace(getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.TelegramChatID = id
	}
	if v := strings.TrimSpace(getenv("USE_BROWSER")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid USE_BROWSER: %w", err)
		}
		c.UseBrowser = b
	}
	return nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields such as the database URL,
// since only some commands need them; see RequireDatabase.
func (c *Config) Validate() error {
	if c.MaxPages < 0 {
		return fmt.Errorf("config error: 'max_pages' must be non-negative")
	}
	if c.ListingsPerPage < 0 {
		return fmt.Errorf("config error: 'listings_per_page' must be non-negative")
	}
	if c.CostPerItem < 0 {
		return fmt.Errorf("config error: 'cost_per_item' must be non-negative")
	}
	if c.PageTimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'page_timeout_seconds' must be non-negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config error: 'concurrency' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("config error: 'base_url' must be an absolute URL, got %q", c.BaseURL)
		}
	}
	switch strings.ToLower(c.LLMProvider) {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("config error: unknown llm_provider %q", c.LLMProvider)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("config error: 'telegram_chat_id' is required when a telegram token is set")
	}
	if c.ProfilesPath != "" {
		if _, err := os.Stat(c.ProfilesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: profiles file not found: %s", c.ProfilesPath)
		}
	}
	return nil
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	return nil
}

// PageTimeout returns the per page fetch timeout.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// LLMAPIKey returns the key for the configured provider.
func (c *Config) LLMAPIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply built-in values under a config file.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, def *string }{
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.RedisAddr, &defaults.RedisAddr},
		{&result.RedisPassword, &defaults.RedisPassword},
		{&result.BaseURL, &defaults.BaseURL},
		{&result.ProfilesPath, &defaults.ProfilesPath},
		{&result.LLMProvider, &defaults.LLMProvider},
		{&result.GeminiAPIKey, &defaults.GeminiAPIKey},
		{&result.OpenAIAPIKey, &defaults.OpenAIAPIKey},
		{&result.QueueDir, &defaults.QueueDir},
		{&result.QueueBucket, &defaults.QueueBucket},
		{&result.QueuePrefix, &defaults.QueuePrefix},
		{&result.TelegramToken, &defaults.TelegramToken},
		{&result.JWTSecret, &defaults.JWTSecret},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	// Int fields: use default if zero
	for _, f := range []struct{ dst, def *int }{
		{&result.MaxPages, &defaults.MaxPages},
		{&result.ListingsPerPage, &defaults.ListingsPerPage},
		{&result.PageTimeoutSeconds, &defaults.PageTimeoutSeconds},
		{&result.Concurrency, &defaults.Concurrency},
		{&result.MaxPromptTokens, &defaults.MaxPromptTokens},
		{&result.Port, &defaults.Port},
		{&result.JWTExpirationHours, &defaults.JWTExpirationHours},
	} {
		if *f.dst == 0 {
			*f.dst = *f.def
		}
	}

	if result.CostPerItem == 0 {
		result.CostPerItem = defaults.CostPerItem
	}
	if result.TelegramChatID == 0 {
		result.TelegramChatID = defaults.TelegramChatID
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
