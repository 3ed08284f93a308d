package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dhruvparmar372/ossgard-sub002/models"
)

const verifySystemPrompt = "You are a senior maintainer of a large open-source project reviewing pull requests for duplication."

const rankSystemPrompt = "You are a senior maintainer deciding which of several duplicate pull requests should be merged."

const summarySystemPrompt = "You summarise pull requests for similarity search."

// verifyUserPrompt builds the pairwise comparison prompt. Diffs are
// truncated so the pair fits comfortably in the model context.
func verifyUserPrompt(a, b *models.PullRequest, diffBudget int) string {
	var sb strings.Builder
	sb.WriteString(`Compare the two pull requests below and decide whether they are duplicates: changes that solve the same problem such that merging one makes the other redundant.

Respond ONLY with a JSON object, no markdown code blocks:
{
  "is_duplicate": true or false,
  "confidence": <0.0-1.0>,
  "relationship": "duplicate" | "subset" | "related" | "unrelated"
}

`)
	writePR(&sb, "PR A", a, diffBudget)
	writePR(&sb, "PR B", b, diffBudget)
	return sb.String()
}

func writePR(sb *strings.Builder, label string, pr *models.PullRequest, diffBudget int) {
	fmt.Fprintf(sb, "--- %s: #%d ---\nTitle: %s\nAuthor: %s\n", label, pr.Number, pr.Title, pr.Author)
	if body := strings.TrimSpace(pr.Body); body != "" {
		fmt.Fprintf(sb, "Description:\n%s\n", truncateToTokens(body, 500))
	}
	if files := filePathList(pr.FilePaths); len(files) > 0 {
		fmt.Fprintf(sb, "Files changed: %s\n", strings.Join(files, ", "))
	}
	if pr.Diff != "" {
		fmt.Fprintf(sb, "Diff:\n```diff\n%s\n```\n", truncateToTokens(pr.Diff, diffBudget))
	}
	sb.WriteString("\n")
}

// rankUserPrompt asks for a merge-preference ordering of one confirmed
// duplicate group.
func rankUserPrompt(prs []*models.PullRequest, diffBudget int) string {
	var sb strings.Builder
	sb.WriteString(`The following pull requests have been confirmed as duplicates of each other. Rank them by which should be merged, considering code quality, completeness, test coverage, and how well the description explains the change.

Respond ONLY with a JSON object, no markdown code blocks:
{
  "label": "<short human label for what this group of PRs does>",
  "ranking": [
    {"number": <pr number>, "rank": 1, "score": <0.0-1.0>, "rationale": "<one sentence>"}
  ]
}
Rank 1 is the best candidate. Use each rank exactly once, starting at 1 with no gaps. Include every PR.

`)
	for _, pr := range prs {
		writePR(&sb, "PR", pr, diffBudget)
	}
	return sb.String()
}

// summaryUserPrompt asks for a short intent summary used for the intent
// embedding when summaries are enabled.
func summaryUserPrompt(pr *models.PullRequest) string {
	var sb strings.Builder
	sb.WriteString("Summarise in 2-3 sentences what this pull request is trying to achieve and how. No preamble.\n\n")
	writePR(&sb, "PR", pr, 1500)
	return sb.String()
}

func filePathList(raw string) []string {
	var files []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil
	}
	return files
}

// verdict is the parsed verify response.
type verdict struct {
	IsDuplicate  bool    `json:"is_duplicate"`
	Confidence   float64 `json:"confidence"`
	Relationship string  `json:"relationship"`
}

// rankResponse is the parsed rank response.
type rankResponse struct {
	Label   string `json:"label"`
	Ranking []struct {
		Number    int     `json:"number"`
		Rank      int     `json:"rank"`
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	} `json:"ranking"`
}

// parseModelJSON unmarshals a model reply into v, tolerating the
// markdown fences models add despite instructions.
func parseModelJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	// Some models wrap JSON in prose; take the outermost object.
	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			text = text[start : end+1]
		}
	}
	return json.Unmarshal([]byte(text), v)
}
