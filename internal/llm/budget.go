package llm

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenBudget counts and trims prompt text by tokens.
type TokenBudget struct {
	encoding *tiktoken.Tiktoken
}

var (
	defaultBudgetOnce sync.Once
	defaultBudget     *TokenBudget
)

// DefaultTokenBudget returns a shared budget using the cl100k_base encoding.
// When the encoding cannot be loaded, counts fall back to an estimate.
func DefaultTokenBudget() *TokenBudget {
	defaultBudgetOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[LLM] tiktoken encoding unavailable, estimating tokens: %v", err)
		}
		defaultBudget = &TokenBudget{encoding: enc}
	})
	return defaultBudget
}

// CountTokens returns the token count of text.
func (b *TokenBudget) CountTokens(text string) int {
	if b == nil || b.encoding == nil {
		return EstimateTokens(text)
	}
	return len(b.encoding.Encode(text, nil, nil))
}

// Trim shortens text to at most maxTokens tokens. maxTokens <= 0 disables it.
func (b *TokenBudget) Trim(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	if b == nil || b.encoding == nil {
		runes := []rune(text)
		limit := maxTokens * estimateCharsPerToken
		if len(runes) <= limit {
			return text
		}
		return string(runes[:limit])
	}
	tokens := b.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return b.encoding.Decode(tokens[:maxTokens])
}

const estimateCharsPerToken = 3

// EstimateTokens approximates the token count from the rune count.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + estimateCharsPerToken - 1) / estimateCharsPerToken
}
