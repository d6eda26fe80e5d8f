// Package server provides the HTTP API over job matches, application status
// and background crawl operations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/lifecycle"
	"github.com/jonathan/jobmatch/internal/operations"
	"github.com/jonathan/jobmatch/internal/server/middleware"
	"github.com/jonathan/jobmatch/internal/server/ratelimit"
)

// MatchStore reads job matches and crawl statistics.
type MatchStore interface {
	QueryMatches(ctx context.Context, filters db.MatchFilters) ([]db.JobMatch, int, error)
	GetJobMatch(ctx context.Context, id uuid.UUID) (*db.JobMatch, error)
	ScrapeStats(ctx context.Context, searchTerm string) ([]db.ScrapeStats, error)
}

// Lifecycle reads and moves application status.
type Lifecycle interface {
	Get(ctx context.Context, jobMatchID uuid.UUID) (*db.ApplicationRecord, error)
	SetStatus(ctx context.Context, jobMatchID uuid.UUID, status lifecycle.Status, notes *string) (bool, error)
	AddNote(ctx context.Context, jobMatchID uuid.UUID, note string) (bool, error)
	PipelineStats(ctx context.Context, cvKey string) (map[string]int, error)
	ListStale(ctx context.Context) ([]db.StaleApplication, error)
}

// Runner starts background operations and returns their ids.
type Runner interface {
	StartCrawl(cfg crawl.Config) string
	StartLetters(ids []uuid.UUID) string
	StartQueue(ids []uuid.UUID, opts bridge.Options) string
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port          int
	CrawlDefaults crawl.Config      // Page budget and timeouts for POST /crawl
	RateLimit     *ratelimit.Config // nil uses ratelimit.DefaultConfig
}

// Deps are the services the handlers call. Health is optional.
type Deps struct {
	Matches   MatchStore
	Lifecycle Lifecycle
	Runner    Runner
	Board     *operations.Board
	JWT       *JWTService
	Health    Pinger
	Logger    *log.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	matches       MatchStore
	lifecycle     Lifecycle
	runner        Runner
	board         *operations.Board
	health        Pinger
	rateLimiter   *ratelimit.Limiter
	crawlDefaults crawl.Config
	logger        *log.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Matches == nil:
		return nil, fmt.Errorf("server requires a match store")
	case deps.Lifecycle == nil:
		return nil, fmt.Errorf("server requires the lifecycle service")
	case deps.Runner == nil || deps.Board == nil:
		return nil, fmt.Errorf("server requires a runner and its operation board")
	case deps.JWT == nil:
		return nil, fmt.Errorf("server requires a JWT service")
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		matches:       deps.Matches,
		lifecycle:     deps.Lifecycle,
		runner:        deps.Runner,
		board:         deps.Board,
		health:        deps.Health,
		rateLimiter:   ratelimit.NewLimiter(cfg.RateLimit),
		crawlDefaults: cfg.CrawlDefaults,
		logger:        logger,
	}

	auth := middleware.AuthMiddleware(deps.JWT.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Job matches and application status
	mux.Handle("GET /matches", protected(s.handleListMatches))
	mux.Handle("GET /matches/{id}", protected(s.handleGetMatch))
	mux.Handle("GET /matches/{id}/status", protected(s.handleGetStatus))
	mux.Handle("PUT /matches/{id}/status", protected(s.handleSetStatus))
	mux.Handle("POST /matches/{id}/notes", protected(s.handleAddNote))

	// Statistics
	mux.Handle("GET /stats", protected(s.handlePipelineStats))
	mux.Handle("GET /stats/scrape", protected(s.handleScrapeStats))
	mux.Handle("GET /stale", protected(s.handleListStale))

	// Background operations
	mux.Handle("POST /crawl", protected(s.handleStartCrawl))
	mux.Handle("POST /letters", protected(s.handleStartLetters))
	mux.Handle("POST /bridge", protected(s.handleStartBridge))
	mux.Handle("GET /operations", protected(s.handleListOperations))
	mux.Handle("GET /operations/{id}", protected(s.handleGetOperation))
	mux.Handle("GET /operations/{id}/stream", protected(s.handleStreamOperation))

	mux.Handle("POST /email/check", protected(s.handleEmailCheck))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // operation streams stay open until the operation ends
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[SERVER] Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Println("[SERVER] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Println("[SERVER] Stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.Method, r.URL.Path)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// failure maps err to a status code and writes it. Internal errors are logged
// and not echoed.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("[SERVER] %s %s failed: %v", r.Method, r.URL.Path, err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// extractClientID returns the caller's IP from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.logger.Printf("[rate-limit] Rate limit exceeded: Limit=%d Reset=%s", info.Limit, info.ResetTime.Format(time.RFC3339))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
