package openai

import "strings"

// completionTokenPrefixes lists model generations that reject max_tokens and
// expect max_completion_tokens.
var completionTokenPrefixes = []string{
	"o1",
	"o3",
	"o4",
	"gpt-5",
}

// UsesCompletionTokens reports whether model belongs to a generation in
// completionTokenPrefixes. Matching is case-insensitive.
func UsesCompletionTokens(model string) bool {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range completionTokenPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
