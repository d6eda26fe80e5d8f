package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, DefaultPromptTokens, config.MaxPromptTokens)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ConfigFor(ProviderOpenAI).Provider)
	assert.Equal(t, "gpt-4o", ConfigFor(ProviderOpenAI).GetModel(TierAdvanced))
	assert.Equal(t, ProviderGemini, ConfigFor("").Provider)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	p, err = ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p)

	_, err = ParseProvider("anthropic")
	assert.Error(t, err)
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{TierLite: "fallback-model"},
	}
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))

	empty := &Config{Provider: ProviderGemini, Models: map[ModelTier]string{}}
	assert.Equal(t, "", empty.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierAdvanced, "custom-model")

	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-flash-lite", newConfig.GetModel(TierLite))
	assert.Equal(t, config.MaxPromptTokens, newConfig.MaxPromptTokens)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(nil, "")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	_, err = NewClient(t.Context(), &Config{Provider: "bogus"}, "key")
	assert.Error(t, err)
}

func TestTokenBudget_EstimateFallback(t *testing.T) {
	var b *TokenBudget

	assert.Equal(t, 4, b.CountTokens("abcdefghij"))
	assert.Equal(t, "short", b.Trim("short", 10))
	assert.Equal(t, strings.Repeat("x", 6), b.Trim(strings.Repeat("x", 50), 2))
	assert.Equal(t, "unchanged", b.Trim("unchanged", 0))
}

func TestBuildJSONPrompt(t *testing.T) {
	schema := OutputSchema{
		Name:        "Test",
		Description: "Score the job.",
		Fields: []SchemaField{
			{Name: "overall_match", Type: "number", Description: "0-10", Required: true},
			{Name: "reasoning"},
		},
	}
	prompt := BuildJSONPrompt(schema, Section{Label: "Job", Text: "  Go developer  "})

	assert.True(t, strings.HasPrefix(prompt, "Score the job."))
	assert.Contains(t, prompt, `"overall_match": number (required) // 0-10,`)
	assert.Contains(t, prompt, `"reasoning": "string"`)
	assert.Contains(t, prompt, "Job:\n\"\"\"\nGo developer\n\"\"\"")
}
