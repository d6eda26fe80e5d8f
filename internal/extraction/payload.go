package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the shape of a raw scraper payload.
type Kind int

const (
	// KindFlat is a flat list of listing objects.
	KindFlat Kind = iota
	// KindRows is a list of pages, each a list of listing objects.
	KindRows
	// KindDocuments is a list of documents whose "content" holds listing objects.
	KindDocuments
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindRows:
		return "rows"
	case KindDocuments:
		return "documents"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Document is one scraped document with its extracted listings.
type Document struct {
	Source  string           `json:"source,omitempty"`
	Content []map[string]any `json:"content"`
}

// Payload is a raw scraper result, resolved once into exactly one shape.
type Payload struct {
	Kind      Kind
	Flat      []map[string]any
	Rows      [][]map[string]any
	Documents []Document
}

// ErrUnknownPayload is returned when a payload matches none of the known shapes.
var ErrUnknownPayload = errors.New("unrecognized scraper payload shape")

// DecodePayload inspects raw JSON and returns the tagged payload.
func DecodePayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Payload{Kind: KindFlat}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// A single document object is accepted as a one-element documents payload.
		var doc Document
		if derr := json.Unmarshal(raw, &doc); derr == nil && doc.Content != nil {
			return Payload{Kind: KindDocuments, Documents: []Document{doc}}, nil
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}
	if len(items) == 0 {
		return Payload{Kind: KindFlat}, nil
	}

	first := bytes.TrimSpace(items[0])
	switch {
	case len(first) > 0 && first[0] == '[':
		var rows [][]map[string]any
		if err := json.Unmarshal(raw, &rows); err != nil {
			return Payload{}, fmt.Errorf("%w: rows: %v", ErrUnknownPayload, err)
		}
		return Payload{Kind: KindRows, Rows: rows}, nil

	case len(first) > 0 && first[0] == '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(first, &probe); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
		}
		if content, ok := probe["content"]; ok && isJSONArray(content) {
			var docs []Document
			if err := json.Unmarshal(raw, &docs); err != nil {
				return Payload{}, fmt.Errorf("%w: documents: %v", ErrUnknownPayload, err)
			}
			return Payload{Kind: KindDocuments, Documents: docs}, nil
		}
		var flat []map[string]any
		if err := json.Unmarshal(raw, &flat); err != nil {
			return Payload{}, fmt.Errorf("%w: flat: %v", ErrUnknownPayload, err)
		}
		return Payload{Kind: KindFlat, Flat: flat}, nil
	}

	return Payload{}, ErrUnknownPayload
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Listings flattens the payload into listings. Entries without a URL are dropped.
func (p Payload) Listings() []RawListing {
	var items []map[string]any
	switch p.Kind {
	case KindFlat:
		items = p.Flat
	case KindRows:
		for _, row := range p.Rows {
			items = append(items, row...)
		}
	case KindDocuments:
		for _, doc := range p.Documents {
			items = append(items, doc.Content...)
		}
	}

	out := make([]RawListing, 0, len(items))
	for _, item := range items {
		if l, ok := ListingFromMap(item); ok {
			out = append(out, l)
		}
	}
	return out
}

var (
	titleKeys       = []string{"title", "job_title", "jobTitle", "position"}
	companyKeys     = []string{"company", "company_name", "companyName", "employer"}
	locationKeys    = []string{"location", "job_location", "city"}
	urlKeys         = []string{"url", "job_url", "jobUrl", "link", "href", "application_url"}
	descriptionKeys = []string{"description", "summary", "snippet"}
)

// ListingFromMap converts one scraped object into a listing, accepting the
// field aliases used by the supported scrapers.
func ListingFromMap(m map[string]any) (RawListing, bool) {
	l := RawListing{
		Title:       lookupString(m, titleKeys),
		Company:     lookupString(m, companyKeys),
		Location:    lookupString(m, locationKeys),
		URL:         lookupString(m, urlKeys),
		Description: lookupString(m, descriptionKeys),
	}
	if l.URL == "" {
		return RawListing{}, false
	}

	known := make(map[string]struct{})
	for _, group := range [][]string{titleKeys, companyKeys, locationKeys, urlKeys, descriptionKeys} {
		for _, k := range group {
			known[k] = struct{}{}
		}
	}
	for k, v := range m {
		if _, ok := known[k]; ok {
			continue
		}
		if l.Extra == nil {
			l.Extra = make(map[string]any)
		}
		l.Extra[k] = v
	}
	return l, true
}

func lookupString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
