package extraction

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/jobmatch/internal/fetch"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// contactLabels precede a contact person's name on German and English pages.
var contactLabels = regexp.MustCompile(`(?i:ansprechpartner(?:in)?|kontaktperson|contact person|your contact)\s*[:\-]?\s*(?:(?i:frau|herr|mrs?\.?|ms\.?)\s+)?([A-ZÄÖÜ][\p{L}\-]+(?:[ \t]+[A-ZÄÖÜ][\p{L}\-]+){0,2})`)

var applyWords = []string{"bewerben", "apply", "jetzt bewerben", "application", "bewerbung"}

// PageFetcher is the page retrieval used by DetailFetcher. *fetch.Fetcher
// satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// DetailFetcher loads job detail pages and parses contact data from them.
type DetailFetcher struct {
	pages PageFetcher
}

// NewDetailFetcher creates a detail source over pages.
func NewDetailFetcher(pages PageFetcher) *DetailFetcher {
	return &DetailFetcher{pages: pages}
}

// FetchJobDetail fetches and parses the detail page at pageURL.
func (d *DetailFetcher) FetchJobDetail(ctx context.Context, pageURL string) (*RawJobDetail, error) {
	res, err := d.pages.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job detail: %w", err)
	}
	detail, err := ParseJobDetail(res.HTML, pageURL)
	if err != nil {
		return nil, err
	}
	if detail.Description == "" && res.Text != "" {
		detail.Description = res.Text
	}
	if detail.Title == "" && detail.Description == "" {
		return nil, nil
	}
	return detail, nil
}

// ParseJobDetail extracts title, company, contact and application link from a
// job detail page.
func ParseJobDetail(html, pageURL string) (*RawJobDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail HTML: %w", err)
	}
	base, _ := url.Parse(pageURL)

	d := &RawJobDetail{URL: pageURL}
	d.Title = firstNonEmpty(
		doc.Find("[data-at='header-job-title']").First().Text(),
		doc.Find("h1").First().Text(),
		doc.Find("meta[property='og:title']").AttrOr("content", ""),
	)
	d.Company = firstNonEmpty(
		doc.Find("[data-at='metadata-company-name']").First().Text(),
		doc.Find("[itemprop='hiringOrganization'] [itemprop='name']").First().Text(),
		doc.Find(".company-name, .company").First().Text(),
	)

	d.ContactEmail = findContactEmail(doc)
	d.ApplicationURL = findApplicationURL(doc, base)

	board := fetch.DetectBoard(pageURL)
	text := fetch.MainText(doc, fetch.ContentSelectors(board), fetch.NoiseSelectors(board)...)
	d.Description = text
	if d.ContactEmail == "" {
		d.ContactEmail = emailPattern.FindString(text)
	}
	d.ContactName = findContactName(text)

	return d, nil
}

func findContactEmail(doc *goquery.Document) string {
	var email string
	doc.Find("a[href^='mailto:']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if decoded, err := url.PathUnescape(addr); err == nil {
			addr = decoded
		}
		addr = strings.TrimSpace(addr)
		if emailPattern.MatchString(addr) {
			email = addr
			return false
		}
		return true
	})
	return email
}

func findApplicationURL(doc *goquery.Document, base *url.URL) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		lowerHref := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lowerHref, "mailto:") || strings.HasPrefix(lowerHref, "javascript:") || strings.HasPrefix(lowerHref, "#") {
			return true
		}
		label := strings.ToLower(strings.TrimSpace(s.Text()))
		for _, w := range applyWords {
			if !strings.Contains(label, w) {
				continue
			}
			u := resolve(base, href)
			if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
				return true
			}
			found = u
			return false
		}
		return true
	})
	return found
}

func findContactName(text string) string {
	m := contactLabels.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
