package extraction

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Selectors locate listing cards on a search results page.
type Selectors struct {
	Card     string
	Title    string
	Company  string
	Location string
	Link     string
}

// StepStoneSelectors match the StepStone search results markup.
func StepStoneSelectors() Selectors {
	return Selectors{
		Card:     "article[data-testid='job-item'], article[data-at='job-item']",
		Title:    "[data-testid='job-item-title'], [data-at='job-item-title']",
		Company:  "[data-at='job-item-company-name']",
		Location: "[data-at='job-item-location']",
		Link:     "a[data-testid='job-item-title'], a[data-at='job-item-title'], a[href*='/stellenangebote--'], a[href*='/job/']",
	}
}

// CollySource scrapes search result pages with colly.
type CollySource struct {
	Selectors      Selectors
	PageParam      string
	RequestTimeout time.Duration
	Delay          time.Duration
	UserAgent      string
	Logger         *log.Logger
}

// NewCollySource returns a source configured for StepStone-style pages.
func NewCollySource(logger *log.Logger) *CollySource {
	if logger == nil {
		logger = log.Default()
	}
	return &CollySource{
		Selectors:      StepStoneSelectors(),
		PageParam:      "page",
		RequestTimeout: 30 * time.Second,
		Delay:          500 * time.Millisecond,
		UserAgent:      "Mozilla/5.0 (compatible; jobmatch/1.0)",
		Logger:         logger,
	}
}

// PageURL sets the page query parameter on sourceURL. Page 1 leaves the URL
// unchanged.
func (s *CollySource) PageURL(sourceURL string, page int) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid source url %q", sourceURL)
	}
	if page > 1 {
		q := u.Query()
		q.Set(s.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// FetchListingsForPage scrapes one results page. Listings are returned in page
// order with duplicate links removed.
func (s *CollySource) FetchListingsForPage(ctx context.Context, sourceURL string, page int) ([]RawListing, error) {
	pageURL, err := s.PageURL(sourceURL, page)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(pageURL)

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(s.UserAgent),
	)
	c.SetRequestTimeout(s.RequestTimeout)
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: s.Delay})

	var mu sync.Mutex
	var listings []RawListing
	cards := 0

	c.OnHTML(s.Selectors.Card, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		cards++

		href := ""
		e.ForEachWithBreak(s.Selectors.Link, func(_ int, a *colly.HTMLElement) bool {
			href = strings.TrimSpace(a.Attr("href"))
			return href == ""
		})
		if href == "" {
			return
		}
		listings = append(listings, RawListing{
			Title:    strings.TrimSpace(e.ChildText(s.Selectors.Title)),
			Company:  strings.TrimSpace(e.ChildText(s.Selectors.Company)),
			Location: strings.TrimSpace(e.ChildText(s.Selectors.Location)),
			URL:      e.Request.AbsoluteURL(href),
		})
	})

	// Pages without card markup still expose job links.
	var fallback []RawListing
	c.OnHTML(s.Selectors.Link, func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		mu.Lock()
		fallback = append(fallback, RawListing{
			Title: strings.TrimSpace(e.Text),
			URL:   e.Request.AbsoluteURL(href),
		})
		mu.Unlock()
	})

	var reqErr error
	c.OnError(func(r *colly.Response, err error) {
		reqErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", pageURL, err)
	}
	c.Wait()
	if reqErr != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, reqErr)
	}

	if cards == 0 {
		listings = fallback
	}
	out := dedupeListings(listings)
	s.Logger.Printf("[EXTRACT] Page %d: %d listings from %s", page, len(out), pageURL)
	return out, nil
}

func dedupeListings(in []RawListing) []RawListing {
	seen := make(map[string]struct{}, len(in))
	out := make([]RawListing, 0, len(in))
	for _, l := range in {
		if l.URL == "" {
			continue
		}
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}
