// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/dispatch"
	"github.com/jonathan/jobmatch/internal/emailgate"
	"github.com/jonathan/jobmatch/internal/lifecycle"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI reports
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintCrawl outputs a summary of one crawl run and its ingest step.
func (p *Printer) PrintCrawl(run *crawl.RunResult, ingest *crawl.IngestResult) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search:   %s\n", run.SearchTerm))
	sb.WriteString(fmt.Sprintf("CV key:   %s\n", run.CVKey))
	sb.WriteString(fmt.Sprintf("Pages:    %d processed, %d failed\n", run.PagesProcessed, run.PagesFailed))
	sb.WriteString(fmt.Sprintf("Listings: %d new, %d duplicates\n", run.NewJobs, run.DuplicateJobs))
	sb.WriteString(fmt.Sprintf("Ended:    %s on page %d\n", run.EndReason, run.ExitPage))
	if run.EarlyExit {
		sb.WriteString(fmt.Sprintf("Saved:    ~%d pages (~$%.2f)\n", run.EstimatedPagesSaved, run.EstimatedCostSaved))
	}
	if ingest != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Stored %d, duplicates %d, evaluated %d", ingest.Stored, ingest.Duplicates, ingest.Evaluated))
		if ingest.EvaluationFails > 0 {
			sb.WriteString(fmt.Sprintf(" (%d evaluation failures)", ingest.EvaluationFails))
		}
		sb.WriteString("\n")
	}

	p.printBox("CRAWL RUN "+run.RunID.String()[:8], strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMatches outputs the top matches of a query.
func (p *Printer) PrintMatches(matches []db.JobMatch, total int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d matches (showing %d)\n", total, len(matches)))

	for i, m := range matches {
		score := "  -  "
		if m.OverallScore != nil {
			score = fmt.Sprintf("%5.1f", *m.OverallScore)
		}
		sb.WriteString(fmt.Sprintf("\n%s  %s\n", score, m.Title))
		sb.WriteString(fmt.Sprintf("       %s, %s\n", m.Company, m.Location))
		sb.WriteString(fmt.Sprintf("       %s", m.ID))
		if i < len(matches)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("JOB MATCHES", sb.String())
}

// PrintPipelineStats outputs per-status counts with totals.
func (p *Printer) PrintPipelineStats(stats map[string]int) {
	if stats == nil {
		return
	}

	var sb strings.Builder
	for _, s := range lifecycle.AllStatuses {
		sb.WriteString(fmt.Sprintf("%-12s %5d\n", s, stats[string(s)]))
	}
	sb.WriteString(strings.Repeat("-", 18) + "\n")
	sb.WriteString(fmt.Sprintf("%-12s %5d\n", "Active", stats[lifecycle.TotalActive]))
	sb.WriteString(fmt.Sprintf("%-12s %5d\n", "Closed", stats[lifecycle.TotalClosed]))
	sb.WriteString(fmt.Sprintf("%-12s %5d", "All", stats[lifecycle.TotalAll]))

	p.printBox("APPLICATION PIPELINE", sb.String())
}

// PrintStale outputs applications stuck in PREPARING.
func (p *Printer) PrintStale(apps []db.StaleApplication) {
	if len(apps) == 0 {
		p.printBox("STALE APPLICATIONS", "None")
		return
	}

	var sb strings.Builder
	count := min(len(apps), maxItemsToShow*2)
	for i := 0; i < count; i++ {
		a := apps[i]
		sb.WriteString(fmt.Sprintf("• %s at %s\n", a.Title, a.Company))
		sb.WriteString(fmt.Sprintf("  since %s  %s\n", a.UpdatedAt.Format("2006-01-02"), a.JobMatchID))
	}
	if len(apps) > count {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(apps)-count))
	}

	p.printBox(fmt.Sprintf("STALE APPLICATIONS (%d)", len(apps)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatch outputs a queue bridge batch result.
func (p *Printer) PrintBatch(res *bridge.BatchResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Queued: %d   Failed: %d\n", res.Queued, res.Failed))

	if len(res.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		count := min(len(res.Warnings), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", res.Warnings[i]))
		}
		if len(res.Warnings) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(res.Warnings)-maxItemsToShow))
		}
	}
	if len(res.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		count := min(len(res.Errors), maxItemsToShow)
		for i := 0; i < count; i++ {
			e := res.Errors[i]
			sb.WriteString(fmt.Sprintf("  ✗ %s [%s]: %s\n", e.JobTitle, e.Type, e.Details))
		}
		if len(res.Errors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(res.Errors)-maxItemsToShow))
		}
	}

	p.printBox("QUEUE BRIDGE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDispatch outputs a dispatch pass summary.
func (p *Printer) PrintDispatch(res *dispatch.Result) {
	if res == nil {
		return
	}
	content := fmt.Sprintf("Sent: %d  Failed: %d  Skipped: %d  Retry: %d", res.Sent, res.Failed, res.Skipped, res.Retry)
	for _, e := range res.Errors {
		content += "\n  ✗ " + e
	}
	p.printBox("DISPATCH", content)
}

// PrintEmailAssessments outputs email quality verdicts.
func (p *Printer) PrintEmailAssessments(batch emailgate.BatchAssessment) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total %d: %d personal, %d generic, %d unclear, %d invalid\n",
		batch.Total, batch.Personal, batch.Generic, batch.Unclear, batch.Invalid))
	for _, a := range batch.Results {
		sb.WriteString(fmt.Sprintf("\n%s [%s %.0f%%]\n", a.Email, a.Severity, a.Confidence*100))
		sb.WriteString(fmt.Sprintf("  %s", a.Recommendation))
	}
	p.printBox("EMAIL QUALITY", sb.String())
}

// PrintItemReport outputs a per-item batch summary such as a letter or
// evaluation pass.
func (p *Printer) PrintItemReport(title, doneLabel string, done, failed int, errs []bridge.ItemError) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %d   Failed: %d", doneLabel, done, failed))
	count := min(len(errs), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := errs[i]
		name := e.JobTitle
		if name == "" {
			name = e.JobMatchID
		}
		sb.WriteString(fmt.Sprintf("\n  ✗ %s: %s", name, e.Details))
	}
	if len(errs) > count {
		sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(errs)-count))
	}
	p.printBox(title, sb.String())
}

// PrintScrapeStats outputs crawl history aggregated per search term.
func (p *Printer) PrintScrapeStats(stats []db.ScrapeStats) {
	if len(stats) == 0 {
		p.printBox("CRAWL HISTORY", "No crawls recorded")
		return
	}

	var sb strings.Builder
	for i, s := range stats {
		sb.WriteString(fmt.Sprintf("%s\n", s.SearchTerm))
		sb.WriteString(fmt.Sprintf("  runs %d, pages %d, early exits %d\n", s.Runs, s.Pages, s.EarlyExits))
		sb.WriteString(fmt.Sprintf("  found %d, new %d, dedup %.0f%%, %.0fms/page", s.JobsFound, s.NewJobs, s.DedupRate*100, s.AvgPageMillis))
		if i < len(stats)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox("CRAWL HISTORY", sb.String())
}

// PrintCVVersions outputs the registered CV versions.
func (p *Printer) PrintCVVersions(versions []db.CVVersion) {
	if len(versions) == 0 {
		p.printBox("CV VERSIONS", "None registered")
		return
	}

	var sb strings.Builder
	for i, v := range versions {
		sb.WriteString(fmt.Sprintf("%s  %s  %s", v.CVKey, v.UploadDate.Format("2006-01-02"), v.FileName))
		if v.Summary != nil && *v.Summary != "" {
			sb.WriteString("\n  " + *v.Summary)
		}
		if i < len(versions)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox(fmt.Sprintf("CV VERSIONS (%d)", len(versions)), sb.String())
}

// PrintApplication outputs the status record of one match. A nil record, or
// one never written, means the match has no explicit status yet.
func (p *Printer) PrintApplication(id string, rec *db.ApplicationRecord) {
	if rec == nil || rec.UpdatedAt.IsZero() {
		p.printBox("APPLICATION "+id, fmt.Sprintf("Status: %s (implicit)", lifecycle.StatusMatched))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:  %s\n", rec.Status))
	sb.WriteString(fmt.Sprintf("Updated: %s", rec.UpdatedAt.Format("2006-01-02 15:04")))
	if rec.Notes != "" {
		sb.WriteString("\n\n" + rec.Notes)
	}
	p.printBox("APPLICATION "+id, sb.String())
}
