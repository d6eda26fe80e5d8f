package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/server"
	"github.com/jonathan/jobmatch/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes job matches, application status and
background crawl, letter and queue operations. Every endpoint except /health
requires a bearer token issued with "jobmatch token".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(0)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg, err := a.cfg.JWT()
	if err != nil {
		return err
	}

	runner, err := a.runner(ctx, runnerOptions{
		evaluate: a.cfg.LLMAPIKey() != "",
		letters:  a.cfg.LLMAPIKey() != "",
		queue:    true,
	})
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = a.cfg.Port
	}

	srv, err := server.New(server.Config{
		Port:          port,
		CrawlDefaults: a.crawlDefaults(),
		RateLimit:     ratelimit.ConfigFromEnv(os.Getenv),
	}, server.Deps{
		Matches:   a.db,
		Lifecycle: a.lifecycle,
		Runner:    runner,
		Board:     runner.Board(),
		JWT:       server.NewJWTService(jwtCfg),
		Health:    a.db,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
