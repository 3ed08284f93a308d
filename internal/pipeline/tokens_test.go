package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestTruncateToTokens(t *testing.T) {
	text := strings.Repeat("a", 100)

	assert.Equal(t, text, truncateToTokens(text, 25))
	assert.Len(t, truncateToTokens(text, 10), 40)
	assert.Equal(t, "", truncateToTokens(text, 0))
}

func TestTruncateToTokens_KeepsPrefix(t *testing.T) {
	text := "header" + strings.Repeat("x", 1000)
	out := truncateToTokens(text, 5)
	assert.True(t, strings.HasPrefix(out, "header"))
}

func TestTruncateToTokens_NeverSplitsRunes(t *testing.T) {
	// Each ellipsis is 3 bytes; a byte-offset cut at 40 would land
	// mid-rune.
	text := strings.Repeat("…", 100)
	out := truncateToTokens(text, 10)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 40)
	assert.NotEmpty(t, out)
}
