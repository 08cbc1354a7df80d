package utils

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates provider tokenizers closely enough to keep
// generation prompts inside a model's context window.
const charsPerToken = 4

// CountTokens estimates the number of tokens in text, rounding up.
func CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// TruncateToTokenLimit cuts text to about limit tokens. When a line break
// falls in the second half of the kept text, the cut moves back to it so
// rendered JSON is not split mid-line.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	keep := limit * charsPerToken
	if keep >= len(runes) {
		return text
	}
	cut := string(runes[:keep])
	if i := strings.LastIndexByte(cut, '\n'); i >= len(cut)/2 {
		cut = cut[:i]
	}
	return cut
}

// TokenBreakdown returns estimated token counts per labeled prompt section,
// for debug logging of what dominates a prompt.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
