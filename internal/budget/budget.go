// Package budget estimates prompt token usage and trims retrieved passages so
// the generation prompt fits a model's context window. Backends use different
// tokenizers, so estimation is a conservative character heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default passage budget in tokens. It fits
	// 8k-context models with room left for the question and the answer.
	DefaultMaxContextTokens = 2000

	// messageOverhead is the per-message framing cost charged by most APIs.
	messageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimPassages keeps the longest prefix of passages whose combined estimate,
// plus fixedTokens for the rest of the prompt, fits within maxTokens.
// Passages arrive nearest first, so the farthest are dropped first. A
// non-positive maxTokens disables trimming.
func TrimPassages(passages []string, fixedTokens, maxTokens int) []string {
	if maxTokens <= 0 {
		return passages
	}
	used := fixedTokens
	for i, p := range passages {
		used += Estimate(p)
		if used > maxTokens {
			return passages[:i]
		}
	}
	return passages
}
