package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/config"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/observability"
	"github.com/jonathan/jobmatch/internal/pipeline"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a job board search and store new postings",
	Long: `Crawls the result pages of one search, or of every search profile, and
stores postings not seen before for the CV. The crawl stops at the first page
whose postings are all known.

Use --profile or --all-profiles with a profiles file (PROFILES_PATH), or give
--search-term, --source-url and --cv/--cv-key directly.`,
	RunE: runCrawl,
}

var (
	crawlSearchTerm  string
	crawlSourceURL   string
	crawlCVPath      string
	crawlCVKey       string
	crawlMaxPages    int
	crawlProfile     string
	crawlAllProfiles bool
	crawlEvaluate    bool
	crawlConcurrency int
)

func init() {
	crawlCmd.Flags().StringVarP(&crawlSearchTerm, "search-term", "s", "", "Search term the results belong to")
	crawlCmd.Flags().StringVarP(&crawlSourceURL, "source-url", "u", "", "Search result URL (page 1)")
	crawlCmd.Flags().StringVar(&crawlCVPath, "cv", "", "CV file to crawl for (registered on first use)")
	crawlCmd.Flags().StringVar(&crawlCVKey, "cv-key", "", "Key of an already registered CV")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "Page budget (default from config)")
	crawlCmd.Flags().StringVarP(&crawlProfile, "profile", "p", "", "Run one search profile by name")
	crawlCmd.Flags().BoolVar(&crawlAllProfiles, "all-profiles", false, "Run every search profile")
	crawlCmd.Flags().BoolVar(&crawlEvaluate, "evaluate", false, "Score new postings with the LLM while storing them")
	crawlCmd.Flags().IntVar(&crawlConcurrency, "concurrency", 0, "Profiles crawled in parallel (default from config)")

	crawlCmd.MarkFlagsMutuallyExclusive("profile", "all-profiles")
	crawlCmd.MarkFlagsMutuallyExclusive("cv", "cv-key")
	crawlCmd.MarkFlagsMutuallyExclusive("profile", "search-term")
	crawlCmd.MarkFlagsMutuallyExclusive("all-profiles", "search-term")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(0)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, runnerOptions{evaluate: crawlEvaluate})
	if err != nil {
		return err
	}

	base := a.crawlDefaults()
	if crawlMaxPages > 0 {
		base.MaxPages = crawlMaxPages
	}
	progress := progressPrinter(cmd.ErrOrStderr())
	printer := observability.NewPrinter(cmd.OutOrStdout())

	if crawlProfile != "" || crawlAllProfiles {
		profiles, err := selectProfiles(a.cfg, crawlProfile, crawlAllProfiles)
		if err != nil {
			return err
		}
		limit := crawlConcurrency
		if limit <= 0 {
			limit = a.cfg.Concurrency
		}
		reports, runErr := runner.CrawlProfiles(ctx, profiles, base, limit, progress)
		for _, r := range reports {
			if r != nil && r.Run != nil {
				printer.PrintCrawl(r.Run, r.Ingest)
			}
		}
		return runErr
	}

	cfg, err := directCrawlConfig(ctx, a, base)
	if err != nil {
		return err
	}
	report, err := runner.Crawl(ctx, cfg, progress)
	if report != nil && report.Run != nil {
		printer.PrintCrawl(report.Run, report.Ingest)
	}
	return err
}

// directCrawlConfig builds the config from --search-term, --source-url and
// the CV flags.
func directCrawlConfig(ctx context.Context, a *app, base crawl.Config) (crawl.Config, error) {
	if crawlSearchTerm == "" || crawlSourceURL == "" {
		return crawl.Config{}, fmt.Errorf("--search-term and --source-url are required without --profile")
	}
	cvKey := crawlCVKey
	if crawlCVPath != "" {
		cv, err := a.cvs.GetOrCreate(ctx, crawlCVPath, nil, nil)
		if err != nil {
			return crawl.Config{}, err
		}
		cvKey = cv.CVKey
	}
	if cvKey == "" {
		return crawl.Config{}, fmt.Errorf("--cv or --cv-key is required")
	}

	cfg := base
	cfg.SearchTerm = crawlSearchTerm
	cfg.SourceURL = crawlSourceURL
	cfg.CVKey = cvKey
	return cfg, nil
}

// selectProfiles loads the profiles file and picks one profile or all.
func selectProfiles(cfg *config.Config, name string, all bool) ([]config.SearchProfile, error) {
	if cfg.ProfilesPath == "" {
		return nil, fmt.Errorf("no profiles file configured: set PROFILES_PATH or profiles_path")
	}
	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}
	if all {
		if len(profiles) == 0 {
			return nil, fmt.Errorf("profiles file %s has no profiles", cfg.ProfilesPath)
		}
		return profiles, nil
	}
	p, ok := config.FindProfile(profiles, name)
	if !ok {
		return nil, fmt.Errorf("profile %q not found in %s", name, cfg.ProfilesPath)
	}
	return []config.SearchProfile{*p}, nil
}

// progressPrinter writes one line per progress event.
func progressPrinter(w io.Writer) pipeline.ProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return func(ev pipeline.ProgressEvent) {
		fmt.Fprintf(w, "[%3d%%] %-8s %s\n", ev.Progress, ev.Step, ev.Message)
	}
}
