package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json code block", "```json\n{\"overall_match\": 7}\n```", `{"overall_match": 7}`},
		{"generic code block", "```\n{\"overall_match\": 7}\n```", `{"overall_match": 7}`},
		{"code block with language", "```javascript\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain JSON", `{"key": "value"}`, `{"key": "value"}`},
		{"preamble", "Here is the evaluation:\n{\"overall_match\": 6.5}", `{"overall_match": 6.5}`},
		{"trailing text", "{\"key\": \"value\"}\n\nLet me know if you need anything else!", `{"key": "value"}`},
		{"array", "Items:\n[\"a\", \"b\"]", `["a", "b"]`},
		{"escaped quotes", `Result: {"reasoning": "He said \"fit\" {sic}"}`, `{"reasoning": "He said \"fit\" {sic}"}`},
		{"no JSON", "sorry, I cannot help", "sorry, I cannot help"},
		{"unterminated", `{"a": 1`, `{"a": 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": {"b": [1, 2]}}`, extractJSONObject(`{"a": {"b": [1, 2]}} tail`))
	assert.Equal(t, `[[1], [2]]`, extractJSONArray(`[[1], [2]] tail`))
	assert.Equal(t, "", extractJSONObject("not json"))
	assert.Equal(t, "", extractJSONArray(""))
}
