package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/observability"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List stored job matches",
	Long: `Lists stored job matches, best score first, with optional filters.
Dates accept YYYY-MM-DD or RFC3339; a bare --to date includes the whole day.`,
	RunE: runMatches,
}

var (
	matchesSearchTerm string
	matchesCVKey      string
	matchesMinScore   float64
	matchesFrom       string
	matchesTo         string
	matchesLocation   string
	matchesLimit      int
	matchesOffset     int
	matchesJSON       bool
)

func init() {
	matchesCmd.Flags().StringVarP(&matchesSearchTerm, "search-term", "s", "", "Only matches of this search term")
	matchesCmd.Flags().StringVar(&matchesCVKey, "cv-key", "", "Only matches of this CV version")
	matchesCmd.Flags().Float64Var(&matchesMinScore, "min-score", 0, "Only matches scored at least this (0-10)")
	matchesCmd.Flags().StringVar(&matchesFrom, "from", "", "Only matches stored on or after this date")
	matchesCmd.Flags().StringVar(&matchesTo, "to", "", "Only matches stored on or before this date")
	matchesCmd.Flags().StringVar(&matchesLocation, "location", "", "Only matches whose location contains this text")
	matchesCmd.Flags().IntVarP(&matchesLimit, "limit", "n", 20, "Maximum matches to show")
	matchesCmd.Flags().IntVar(&matchesOffset, "offset", 0, "Matches to skip")
	matchesCmd.Flags().BoolVar(&matchesJSON, "json", false, "Print matches as JSON")

	rootCmd.AddCommand(matchesCmd)
}

func runMatches(cmd *cobra.Command, _ []string) error {
	filters, err := matchFilters(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	matches, total, err := a.db.QueryMatches(ctx, filters)
	if err != nil {
		return err
	}

	if matchesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"items": matches, "total": total})
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintMatches(matches, total)
	return nil
}

// matchFilters builds query filters from the flags that were set.
func matchFilters(cmd *cobra.Command) (db.MatchFilters, error) {
	f := db.MatchFilters{
		SearchTerm: matchesSearchTerm,
		CVKey:      matchesCVKey,
		Location:   matchesLocation,
		Limit:      matchesLimit,
		Offset:     matchesOffset,
	}
	if f.Limit <= 0 || f.Limit > 500 {
		return f, fmt.Errorf("--limit must be between 1 and 500, got %d", f.Limit)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("--offset must not be negative")
	}
	if cmd.Flags().Changed("min-score") {
		if matchesMinScore < 0 || matchesMinScore > 10 {
			return f, fmt.Errorf("--min-score must be between 0 and 10, got %g", matchesMinScore)
		}
		score := matchesMinScore
		f.MinScore = &score
	}
	if matchesFrom != "" {
		from, err := parseDateFlag(matchesFrom, false)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = &from
	}
	if matchesTo != "" {
		to, err := parseDateFlag(matchesTo, true)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = &to
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, fmt.Errorf("--to is before --from")
	}
	return f, nil
}

// parseDateFlag accepts RFC3339 or a bare date. A bare date with endOfDay set
// resolves to the last instant of that day.
func parseDateFlag(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not YYYY-MM-DD or RFC3339", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
