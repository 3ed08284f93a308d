package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhruvparmar372/ossgard-sub002/models"
)

func TestCodeText_CombinesTitleFilesAndDiff(t *testing.T) {
	pr := &models.PullRequest{
		Title:     "Fix retry backoff",
		FilePaths: `["queue/backoff.go","queue/backoff_test.go"]`,
		Diff:      "diff --git a/queue/backoff.go b/queue/backoff.go\n-old\n+new\n",
	}
	out := codeText(pr, 1000)
	assert.Contains(t, out, "Title: Fix retry backoff")
	assert.Contains(t, out, "queue/backoff.go")
	assert.Contains(t, out, "queue/backoff_test.go")
	assert.Contains(t, out, "+new")
}

func TestCodeText_TruncatesOnlyTheDiff(t *testing.T) {
	pr := &models.PullRequest{
		Title:     "Huge refactor",
		FilePaths: `["a.go"]`,
		Diff:      strings.Repeat("x", 10000),
	}
	out := codeText(pr, 50)
	assert.Contains(t, out, "Title: Huge refactor")
	assert.Contains(t, out, "a.go")
	assert.Less(t, len(out), 1000)
}

func TestCodeText_EmptyDiffStillHasSignal(t *testing.T) {
	pr := &models.PullRequest{Title: "Docs pass", FilePaths: `["README.md"]`}
	out := codeText(pr, 100)
	assert.Contains(t, out, "Title: Docs pass")
	assert.Contains(t, out, "README.md")
	assert.NotContains(t, out, "Diff:")
}
