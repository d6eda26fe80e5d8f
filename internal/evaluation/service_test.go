package evaluation

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/llm"
)

type stubClient struct {
	response string
	err      error
	prompts  []string
	tiers    []llm.ModelTier
}

func (c *stubClient) GenerateContent(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.GenerateJSON(context.Background(), prompt, tier)
}

func (c *stubClient) GenerateJSON(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.tiers = append(c.tiers, tier)
	return c.response, c.err
}

func (c *stubClient) GetModel(llm.ModelTier) string { return "stub" }
func (c *stubClient) Close() error                  { return nil }

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestEvaluate(t *testing.T) {
	client := &stubClient{response: "```json\n{\"scores\": {\"skills\": 8}, \"overall_match\": 7.5, \"reasoning\": \" Good Go fit. \"}\n```"}
	svc := NewService(client, nil, 0, quiet())

	e, err := svc.Evaluate(context.Background(), "Go engineer, 8 years", extraction.RawListing{
		Title: "Backend Engineer", Company: "ACME", Location: "Berlin", Description: "We use Go.",
	})
	require.NoError(t, err)
	assert.Equal(t, 7.5, e.OverallMatch)
	assert.Equal(t, 8.0, e.Scores["skills"])
	assert.Equal(t, "Good Go fit.", e.Reasoning)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Go engineer, 8 years")
	assert.Contains(t, client.prompts[0], "Company: ACME")
	assert.Equal(t, llm.TierStandard, client.tiers[0])
}

func TestEvaluate_TrimsJobText(t *testing.T) {
	client := &stubClient{response: `{"overall_match": 5}`}
	svc := NewService(client, nil, 10, quiet())

	_, err := svc.Evaluate(context.Background(), "cv", extraction.RawListing{Title: "T", Description: strings.Repeat("z", 500)})
	require.NoError(t, err)
	assert.NotContains(t, client.prompts[0], strings.Repeat("z", 100))
}

func TestEvaluate_Errors(t *testing.T) {
	svc := NewService(&stubClient{}, nil, 0, quiet())
	_, err := svc.Evaluate(context.Background(), "  ", extraction.RawListing{})
	assert.ErrorIs(t, err, ErrNoCVSummary)

	failing := NewService(&stubClient{err: errors.New("quota")}, nil, 0, quiet())
	_, err = failing.Evaluate(context.Background(), "cv", extraction.RawListing{})
	assert.ErrorContains(t, err, "quota")
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"overall_match": 10, "reasoning": "x"}`, false},
		{"zero", `{"overall_match": 0}`, false},
		{"too high", `{"overall_match": 11}`, true},
		{"negative", `{"overall_match": -1}`, true},
		{"not json", `I think it is a 7`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvaluation(tt.raw)
			if tt.wantErr {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGenerateLetter(t *testing.T) {
	client := &stubClient{response: `{"subject_line": "Bewerbung", "letter_html": "<p>Sehr geehrte Frau Schmidt</p>", "email_text": "Anbei"}`}
	svc := NewService(client, nil, 0, quiet())

	l, err := svc.GenerateLetter(context.Background(), "cv", extraction.RawJobDetail{
		Title: "Go Dev", Company: "ACME", ContactName: "Anna Schmidt", Description: "Go, Postgres",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bewerbung", l.SubjectLine)
	assert.Equal(t, "Anbei", l.EmailText)
	assert.Contains(t, client.prompts[0], "Address the letter to Anna Schmidt.")
	assert.Equal(t, llm.TierAdvanced, client.tiers[0])

	_, err = ParseLetter(`{"subject_line": "x"}`)
	assert.Error(t, err)
}

type summaries map[string]string

func (s summaries) Summary(_ context.Context, key string) (string, error) {
	return s[key], nil
}

func TestScorer(t *testing.T) {
	client := &stubClient{response: `{"scores": {"skills": 6}, "overall_match": 6, "reasoning": "ok"}`}
	scorer := NewScorer(NewService(client, nil, 0, quiet()), summaries{"cv1": "Go engineer"})

	in, err := scorer.Evaluate(context.Background(), "cv1", extraction.RawListing{Title: "Dev"})
	require.NoError(t, err)
	assert.Equal(t, 6.0, in.OverallScore)
	assert.Equal(t, "ok", in.Reasoning)

	_, err = scorer.Evaluate(context.Background(), "unknown", extraction.RawListing{Title: "Dev"})
	assert.ErrorIs(t, err, ErrNoCVSummary)
}

type stubDetails struct {
	detail *extraction.RawJobDetail
}

func (s stubDetails) FetchJobDetail(context.Context, string) (*extraction.RawJobDetail, error) {
	return s.detail, nil
}

type memLetterStore struct {
	details []db.JobDetail
	letters []db.MotivationLetter
}

func (m *memLetterStore) UpsertJobDetail(_ context.Context, d *db.JobDetail) error {
	m.details = append(m.details, *d)
	return nil
}

func (m *memLetterStore) SaveMotivationLetter(_ context.Context, l *db.MotivationLetter) error {
	m.letters = append(m.letters, *l)
	return nil
}

func TestLetterWriter(t *testing.T) {
	client := &stubClient{response: `{"subject_line": "Bewerbung", "letter_html": "<p>Hallo</p>"}`}
	store := &memLetterStore{}
	w := NewLetterWriter(NewService(client, nil, 0, quiet()), summaries{"cv1": "Go engineer"},
		stubDetails{detail: &extraction.RawJobDetail{ContactEmail: "anna@acme.de", Description: "Go"}}, store, quiet())

	m := &db.JobMatch{JobURL: "https://www.stepstone.de/job/x/1", CVKey: "cv1", Title: "Go Dev", Company: "ACME"}
	letter, err := w.Write(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "https://www.stepstone.de/job/x/1", letter.JobURL)

	require.Len(t, store.details, 1)
	assert.Equal(t, "anna@acme.de", store.details[0].ContactEmail)
	assert.Equal(t, "Go Dev", store.details[0].JobTitle, "listing title fills a missing detail title")
	require.Len(t, store.letters, 1)

	failing := NewLetterWriter(NewService(&stubClient{err: errors.New("down")}, nil, 0, quiet()),
		summaries{"cv1": "Go engineer"}, stubDetails{}, store, quiet())
	_, err = failing.Write(context.Background(), m)
	require.Error(t, err)
	assert.Len(t, store.details, 2, "detail is stored before generation")
	assert.Len(t, store.letters, 1)
}
