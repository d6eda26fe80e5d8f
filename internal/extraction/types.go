// Package extraction is the boundary to job board scraping. Whatever shape a
// source produces is converted here into RawListing and RawJobDetail values.
package extraction

import (
	"context"
	"strings"
)

// RawListing is one search-result entry as scraped. URL is not yet canonical.
type RawListing struct {
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	Location    string         `json:"location"`
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Snapshot returns the listing as a generic map for raw storage.
func (l RawListing) Snapshot() map[string]any {
	m := map[string]any{
		"title":    l.Title,
		"company":  l.Company,
		"location": l.Location,
		"url":      l.URL,
	}
	if l.Description != "" {
		m["description"] = l.Description
	}
	for k, v := range l.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

// RawJobDetail is the scraped detail page of a posting.
type RawJobDetail struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Company        string `json:"company"`
	ContactName    string `json:"contact_name,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
	ApplicationURL string `json:"application_url,omitempty"`
	Description    string `json:"description"`
}

// ListingSource fetches one page of search results.
type ListingSource interface {
	FetchListingsForPage(ctx context.Context, sourceURL string, page int) ([]RawListing, error)
}

// DetailSource fetches the detail page of one posting. A nil detail with nil
// error means the page had nothing usable.
type DetailSource interface {
	FetchJobDetail(ctx context.Context, url string) (*RawJobDetail, error)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
