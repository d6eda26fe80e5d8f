// Package urlnorm canonicalizes job posting URLs so they can be used as stable
// identities for deduplication and cross-source matching.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrEmptyURL is returned when normalization is asked to work on an empty string.
var ErrEmptyURL = errors.New("empty URL")

// DefaultBaseURL is the job board used when no base is configured.
const DefaultBaseURL = "https://www.stepstone.de"

// spuriousExtensions are appended to URLs by earlier export stages.
var spuriousExtensions = []string{".md", ".json", ".html", ".txt"}

// jobIDPattern matches /job/<slug>/<digits> and /job/<digits>.
var jobIDPattern = regexp.MustCompile(`(?i)/job/(?:[^/?#]+/)?(\d+)(?:[/?#]|$)`)

// Normalizer turns raw job URLs into their canonical absolute form.
type Normalizer struct {
	base       *url.URL
	hostPrefix string
}

// New creates a Normalizer for the given base URL. An empty base falls back to DefaultBaseURL.
func New(baseURL string) (*Normalizer, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	base.Scheme = "https"
	base.Host = strings.ToLower(base.Host)
	base.Path = strings.TrimRight(base.Path, "/")

	prefix := ""
	if strings.HasPrefix(base.Host, "www.") {
		prefix = "www."
	}
	return &Normalizer{base: base, hostPrefix: prefix}, nil
}

// Must is like New but panics on error. Intended for tests and package-level defaults.
func Must(baseURL string) *Normalizer {
	n, err := New(baseURL)
	if err != nil {
		panic(err)
	}
	return n
}

// BaseURL returns the canonical base URL string.
func (n *Normalizer) BaseURL() string {
	return n.base.String()
}

// Normalize returns the canonical absolute form of raw. Relative paths are
// resolved against base, or against the normalizer's default base when base is empty.
// Query strings are kept as-is.
func (n *Normalizer) Normalize(raw, base string) (string, error) {
	cleaned := n.CleanMalformed(raw)
	if cleaned == "" {
		return "", ErrEmptyURL
	}

	resolveAgainst := n.base
	if strings.TrimSpace(base) != "" {
		b, err := url.Parse(n.CleanMalformed(base))
		if err == nil && b.Host != "" {
			resolveAgainst = b
		}
	}

	ref, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}

	var abs *url.URL
	if ref.Host != "" {
		abs = ref
	} else if n.startsWithHost(cleaned) {
		abs, err = url.Parse("https://" + cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
		}
	} else {
		abs = resolveAgainst.ResolveReference(ref)
	}

	abs.Scheme = "https"
	abs.Host = n.canonicalHost(abs.Host)
	abs.Fragment = ""
	abs.Path = cleanPath(abs.Path)
	abs.RawPath = ""

	out := abs.String()
	return strings.TrimRight(out, "/"), nil
}

// canonicalHost lowercases host and forces the known prefix for the base domain.
func (n *Normalizer) canonicalHost(host string) string {
	host = strings.ToLower(host)
	bare := strings.TrimPrefix(n.base.Host, "www.")
	if n.hostPrefix != "" && host == bare {
		return n.hostPrefix + host
	}
	return host
}

// CleanMalformed repairs known malformations produced by upstream stages:
// spurious trailing extensions, doubled base URLs and a stray leading slash
// in front of an absolute URL.
func (n *Normalizer) CleanMalformed(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// "/https://host/..." -> "https://host/..."
	for strings.HasPrefix(s, "/") && schemeAt(s[1:]) {
		s = s[1:]
	}

	// Doubled base: keep the rightmost scheme+host occurrence. Only the part
	// before the query is searched so redirect parameters survive.
	head := s
	if i := strings.Index(head, "?"); i >= 0 {
		head = head[:i]
	}
	lowerHead := strings.ToLower(head)
	last := max(strings.LastIndex(lowerHead, "https://"), strings.LastIndex(lowerHead, "http://"))
	if last > 0 {
		s = s[last:]
	}

	return stripExtensions(s)
}

// stripExtensions removes spurious trailing extensions. Stripping one can
// expose another (".html.md"), so it loops.
func stripExtensions(s string) string {
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, ext := range spuriousExtensions {
			if strings.HasSuffix(lower, ext) {
				s = s[:len(s)-len(ext)]
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// cleanPath trims trailing slashes and spurious extensions from a URL path
// until neither is left.
func cleanPath(p string) string {
	for {
		next := stripExtensions(strings.TrimRight(p, "/"))
		if next == p {
			return p
		}
		p = next
	}
}

// NormalizeForComparison returns a loose comparison key: lowercase, no
// scheme, no leading www., no trailing slash.
func NormalizeForComparison(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// ExtractJobID returns the numeric job id from a /job/<slug>/<digits> or
// /job/<digits> path.
func ExtractJobID(raw string) (string, bool) {
	m := jobIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// URLsMatch reports whether a and b identify the same job. When the
// comparison keys differ but the hosts agree, the numeric job ids decide,
// because upstream data sometimes reslugs the same posting.
func (n *Normalizer) URLsMatch(a, b string) bool {
	ca, errA := n.Normalize(a, "")
	cb, errB := n.Normalize(b, "")
	if errA != nil || errB != nil {
		return false
	}

	ka, kb := NormalizeForComparison(ca), NormalizeForComparison(cb)
	if ka == kb {
		return true
	}

	if hostOf(ka) != hostOf(kb) {
		return false
	}
	idA, okA := ExtractJobID(ca)
	idB, okB := ExtractJobID(cb)
	return okA && okB && idA == idB
}

func hostOf(key string) string {
	if i := strings.IndexAny(key, "/?#"); i >= 0 {
		return key[:i]
	}
	return key
}

func schemeAt(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// startsWithHost reports whether a scheme-less string starts with the base
// host (with or without www.) or any www. host.
func (n *Normalizer) startsWithHost(s string) bool {
	first := strings.ToLower(s)
	if i := strings.IndexAny(first, "/?#"); i >= 0 {
		first = first[:i]
	}
	if strings.HasPrefix(first, "www.") {
		return true
	}
	bare := strings.TrimPrefix(n.base.Host, "www.")
	return first == bare || first == n.base.Host
}
