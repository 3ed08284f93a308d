package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxStoredDiff caps how much normalised diff text is persisted per PR.
// Diffs beyond this are hashed in full but stored truncated.
const maxStoredDiff = 256 * 1024

// normalizeDiff canonicalises a unified diff so that formatting noise
// does not change its hash: CRLF becomes LF, trailing whitespace is
// stripped per line, and trailing blank lines are dropped.
func normalizeDiff(diff string) string {
	diff = strings.ReplaceAll(diff, "\r\n", "\n")
	diff = strings.ReplaceAll(diff, "\r", "\n")
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

// hashDiff returns the hex SHA-256 of the normalised diff, or "" for an
// empty diff so empty PRs never collide with each other.
func hashDiff(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// truncateStoredDiff bounds the diff text persisted to the database.
func truncateStoredDiff(normalized string) string {
	if len(normalized) <= maxStoredDiff {
		return normalized
	}
	return normalized[:maxStoredDiff]
}
