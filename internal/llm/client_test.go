package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	candidate := func(reason genai.FinishReason, parts ...genai.Part) *genai.GenerateContentResponse {
		c := &genai.Candidate{FinishReason: reason}
		if parts != nil {
			c.Content = &genai.Content{Parts: parts}
		}
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{c}}
	}

	tests := []struct {
		name      string
		resp      *genai.GenerateContentResponse
		want      string
		wantErr   string
		isBlocked bool
	}{
		{name: "joins text parts", resp: candidate(genai.FinishReasonStop, genai.Text(`{"overall_match":`), genai.Text(` 7}`)), want: `{"overall_match": 7}`},
		{name: "skips non-text parts", resp: candidate(genai.FinishReasonStop, genai.Blob{MIMEType: "image/png"}, genai.Text("ok")), want: "ok"},
		{name: "nil response", resp: nil, wantErr: "no candidates"},
		{name: "no content", resp: candidate(genai.FinishReasonStop), wantErr: "no content"},
		{name: "only blobs", resp: candidate(genai.FinishReasonStop, genai.Blob{MIMEType: "image/png"}), wantErr: "no text parts"},
		{name: "safety stop", resp: candidate(genai.FinishReasonSafety, genai.Text("partial")), isBlocked: true},
		{
			name:      "prompt blocked",
			resp:      &genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}},
			isBlocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := responseText(tt.resp)
			switch {
			case tt.isBlocked:
				assert.ErrorIs(t, err, ErrBlocked)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
