// Package crawl pages through job search results, keeps only listings that are
// new for a (search term, CV key) pair and stops as soon as a page is entirely
// already known.
package crawl

import "fmt"

// ConfigError reports a run configuration that cannot be used. Runs with a
// ConfigError never fetch anything.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("crawl config error: %s: %s", e.Field, e.Message)
}

// CrawlError represents a failure that aborted a run after it started.
type CrawlError struct {
	Page    int
	Message string
	Cause   error
}

func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crawl error on page %d: %s: %v", e.Page, e.Message, e.Cause)
	}
	return fmt.Sprintf("crawl error on page %d: %s", e.Page, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Cause
}
