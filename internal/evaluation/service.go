// Package evaluation scores job listings against a CV summary and drafts
// motivation letters through an llm.Client.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/llm"
	"github.com/jonathan/jobmatch/internal/prompts"
)

// ErrNoCVSummary is returned when a CV key has no stored summary to score against.
var ErrNoCVSummary = errors.New("cv summary is empty")

// Evaluation is the verdict for one listing.
type Evaluation struct {
	Scores       map[string]float64 `json:"scores"`
	OverallMatch float64            `json:"overall_match"`
	Reasoning    string             `json:"reasoning"`
}

// Letter is a generated motivation letter.
type Letter struct {
	SubjectLine string `json:"subject_line"`
	LetterHTML  string `json:"letter_html"`
	LetterText  string `json:"letter_text,omitempty"`
	EmailText   string `json:"email_text,omitempty"`
}

// ParseError reports a model response that could not be used.
type ParseError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s response: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid %s response: %s", e.Kind, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Service talks to the model.
type Service struct {
	client    llm.Client
	budget    *llm.TokenBudget
	maxTokens int
	logger    *log.Logger
}

// NewService creates an evaluation service. maxPromptTokens bounds the job
// text placed into each prompt; zero disables trimming.
func NewService(client llm.Client, budget *llm.TokenBudget, maxPromptTokens int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{client: client, budget: budget, maxTokens: maxPromptTokens, logger: logger}
}

func (s *Service) trim(text string) string {
	trimmed := s.budget.Trim(text, s.maxTokens)
	if len(trimmed) < len(text) {
		s.logger.Printf("[EVAL] Trimmed job text to %d tokens", s.maxTokens)
	}
	return trimmed
}

// Evaluate scores listing against cvSummary. The overall score is on a 0-10 scale.
func (s *Service) Evaluate(ctx context.Context, cvSummary string, listing extraction.RawListing) (*Evaluation, error) {
	if strings.TrimSpace(cvSummary) == "" {
		return nil, ErrNoCVSummary
	}

	prompt := llm.BuildJSONPrompt(evaluationSchema(),
		llm.Section{Label: "Candidate CV summary", Text: cvSummary},
		llm.Section{Label: "Job listing", Text: s.trim(listingText(listing))},
	)
	raw, err := s.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate listing: %w", err)
	}
	return ParseEvaluation(raw)
}

// GenerateLetter drafts a motivation letter for detail.
func (s *Service) GenerateLetter(ctx context.Context, cvSummary string, detail extraction.RawJobDetail) (*Letter, error) {
	if strings.TrimSpace(cvSummary) == "" {
		return nil, ErrNoCVSummary
	}

	prompt := llm.BuildJSONPrompt(letterSchema(detail.ContactName),
		llm.Section{Label: "Candidate CV summary", Text: cvSummary},
		llm.Section{Label: "Job posting", Text: s.trim(detailText(detail))},
	)
	raw, err := s.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("failed to generate letter: %w", err)
	}
	return ParseLetter(raw)
}

// ParseEvaluation decodes and checks an evaluation response.
func ParseEvaluation(raw string) (*Evaluation, error) {
	var e Evaluation
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &e); err != nil {
		return nil, &ParseError{Kind: "evaluation", Message: "not a JSON object", Cause: err}
	}
	if math.IsNaN(e.OverallMatch) || e.OverallMatch < 0 || e.OverallMatch > 10 {
		return nil, &ParseError{Kind: "evaluation", Message: fmt.Sprintf("overall_match %.2f outside 0-10", e.OverallMatch)}
	}
	e.Reasoning = strings.TrimSpace(e.Reasoning)
	for k, v := range e.Scores {
		if math.IsNaN(v) {
			delete(e.Scores, k)
		}
	}
	return &e, nil
}

// ParseLetter decodes and checks a letter response.
func ParseLetter(raw string) (*Letter, error) {
	var l Letter
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &l); err != nil {
		return nil, &ParseError{Kind: "letter", Message: "not a JSON object", Cause: err}
	}
	l.SubjectLine = strings.TrimSpace(l.SubjectLine)
	l.LetterHTML = strings.TrimSpace(l.LetterHTML)
	if l.SubjectLine == "" || l.LetterHTML == "" {
		return nil, &ParseError{Kind: "letter", Message: "subject_line and letter_html are required"}
	}
	return &l, nil
}

func listingText(l extraction.RawListing) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nCompany: %s\nLocation: %s\n", l.Title, l.Company, l.Location)
	if l.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(l.Description)
	}
	return sb.String()
}

func detailText(d extraction.RawJobDetail) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nCompany: %s\n", d.Title, d.Company)
	if d.ContactName != "" {
		fmt.Fprintf(&sb, "Contact: %s\n", d.ContactName)
	}
	sb.WriteString("\n")
	sb.WriteString(d.Description)
	return sb.String()
}

func evaluationSchema() llm.OutputSchema {
	return llm.OutputSchema{
		Name:        "JobEvaluation",
		Description: prompts.MustGet(prompts.Evaluation, "evaluate-listing"),
		Fields: []llm.SchemaField{
			{Name: "scores", Type: `{"skills": number, "experience": number, "seniority": number, "location": number}`, Description: "Sub-scores, 0-10 each", Required: true},
			{Name: "overall_match", Type: "number", Description: "Overall fit, 0-10", Required: true},
			{Name: "reasoning", Type: `"string"`, Description: "Two or three sentences explaining the score", Required: true},
		},
	}
}

func letterSchema(contact string) llm.OutputSchema {
	greeting := prompts.MustGet(prompts.Evaluation, "greeting-neutral")
	if contact != "" {
		greeting = prompts.Render(prompts.Evaluation, "greeting-contact", map[string]string{"Contact": contact})
	}
	return llm.OutputSchema{
		Name:        "MotivationLetter",
		Description: prompts.Render(prompts.Evaluation, "motivation-letter", map[string]string{"Greeting": greeting}),
		Fields: []llm.SchemaField{
			{Name: "subject_line", Description: "Email subject line", Required: true},
			{Name: "letter_html", Description: "Letter body as simple HTML paragraphs", Required: true},
			{Name: "letter_text", Description: "Same letter as plain text"},
			{Name: "email_text", Description: "Short cover email that accompanies the letter"},
		},
	}
}
