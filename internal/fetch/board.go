package fetch

import (
	"net/url"
	"strings"
)

// Board is a known job board.
type Board string

const (
	BoardStepStone Board = "stepstone"
	BoardIndeed    Board = "indeed"
	BoardXing      Board = "xing"
	BoardLinkedIn  Board = "linkedin"
	BoardUnknown   Board = "unknown"
)

// DetectBoard identifies the job board from a URL host.
func DetectBoard(urlStr string) Board {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return BoardUnknown
	}
	host := strings.ToLower(parsed.Hostname())

	switch {
	case strings.Contains(host, "stepstone."):
		return BoardStepStone
	case strings.Contains(host, "indeed."):
		return BoardIndeed
	case strings.Contains(host, "xing.com"):
		return BoardXing
	case strings.Contains(host, "linkedin.com"):
		return BoardLinkedIn
	default:
		return BoardUnknown
	}
}

// ContentSelectors returns description selectors for a board, most specific first.
func ContentSelectors(board Board) []string {
	switch board {
	case BoardStepStone:
		return append([]string{
			"[data-at='job-ad-content']",
			"[data-genesis-element='CARD_CONTENT']",
			".listing-content",
		}, JobPostingSelectors()...)
	case BoardIndeed:
		return append([]string{
			"#jobDescriptionText",
			".jobsearch-JobComponent-description",
		}, JobPostingSelectors()...)
	case BoardXing:
		return append([]string{
			"[data-testid='expandable-content']",
			".job-posting-description",
		}, JobPostingSelectors()...)
	case BoardLinkedIn:
		return append([]string{
			".show-more-less-html__markup",
			".description__text",
		}, JobPostingSelectors()...)
	default:
		return JobPostingSelectors()
	}
}

// NoiseSelectors returns elements to strip before extracting description text.
func NoiseSelectors(board Board) []string {
	common := []string{
		"form",
		".apply-button-container",
		".social-share",
		".share-buttons",
		".cookie-consent",
		".gdpr-notice",
		"[data-testid='similar-jobs']",
	}

	switch board {
	case BoardStepStone:
		return append(common,
			"[data-at='job-ad-similar-jobs']",
			"[data-at='header-apply-button']",
		)
	case BoardIndeed:
		return append(common, "#jobsearch-ViewJobButtons-container")
	case BoardLinkedIn:
		return append(common, ".top-card-layout__cta-container")
	default:
		return common
	}
}
