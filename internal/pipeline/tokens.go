package pipeline

import "unicode/utf8"

// estimateTokens approximates the token count of text. Four characters
// per token is the usual rule of thumb for code-heavy English input and
// errs on the generous side, which matters because the budget keeps us
// under the embedding model's context window.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateToTokens drops text from the end until the estimate fits
// budget tokens. Truncation from the end keeps the diff header and the
// first hunks, which carry the most signal.
func truncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if estimateTokens(text) <= budget {
		return text
	}
	cut := budget * 4
	// Never split a multi-byte rune; the providers get valid UTF-8.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
