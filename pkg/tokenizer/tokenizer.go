package tokenizer

import (
	"strings"
)

// Estimate returns a rough token count. The pipeline only needs token counts
// for budgeting: ~4/3 tokens per word for prose, with a character floor so
// long unbroken strings still register.
func Estimate(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	byWords := len(words) * 4 / 3
	if byChars := len(text) / 4; byChars > byWords {
		return byChars
	}
	return max(byWords, 1)
}

// Truncate drops words from the end until the text fits the token budget.
func Truncate(text string, maxTokens int) string {
	if Estimate(text) <= maxTokens {
		return text
	}
	words := strings.Fields(text)
	keep := maxTokens * 3 / 4
	if keep <= 0 {
		return ""
	}
	if keep > len(words) {
		keep = len(words)
	}
	return strings.Join(words[:keep], " ")
}

// TailWords returns the last n words of text, used for segment overlap.
func TailWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[len(words)-n:], " ")
}
