package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// embedCursor is the embed phase's resume point: the highest PR number
// whose vectors are durably stored.
type embedCursor struct {
	LastPR int `json:"last_pr"`
}

// processEmbed computes code and intent vectors for every open PR and
// writes them to the vector store in batches. The cursor advances per
// batch; on resume, PRs at or below the cursor are skipped.
func (d *Deps) processEmbed(ctx context.Context, job *models.Job) (string, error) {
	var p scanPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding embed payload: %w", err))
	}

	scan, repo, run, err := d.beginPhase(ctx, p.ScanID, models.ScanStatusEmbedding)
	if err != nil || !run {
		return "", err
	}

	cursor := embedCursor{}
	if scan.PhaseCursor != "" {
		if err := json.Unmarshal([]byte(scan.PhaseCursor), &cursor); err != nil {
			d.Logger.Warn("unreadable embed cursor, restarting phase", "scan", scan.ID, "error", err)
			cursor = embedCursor{}
		}
	}

	dims := d.Embedder.Dimensions()
	if dims <= 0 {
		return "", queue.NonRetryable(fmt.Errorf("embedding provider %q reports no dimensions", d.Embedder.Name()))
	}
	for _, coll := range []string{vector.CollectionCode, vector.CollectionIntent} {
		if err := d.Vectors.EnsureCollection(ctx, coll, dims); err != nil {
			return "", fmt.Errorf("ensuring %s collection: %w", coll, err)
		}
	}

	prs, err := d.Store.ListOpenPRs(ctx, repo.ID)
	if err != nil {
		return "", fmt.Errorf("listing open PRs: %w", err)
	}

	log := d.Logger.With("scan", scan.ID, "repo", repo.FullName())
	log.Info("embed starting", "open_prs", len(prs), "after", cursor.LastPR)

	batchSize := d.Config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	budget := int(float64(d.EmbedContextTokens) * d.Config.TokenBudgetFactor)
	if budget <= 0 {
		budget = 7500
	}

	var batch []*models.PullRequest
	embedded := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.embedBatch(ctx, repo.ID, batch, budget); err != nil {
			return err
		}
		embedded += len(batch)
		cursor.LastPR = batch[len(batch)-1].Number
		batch = batch[:0]
		if err := d.Store.SetPhaseCursor(ctx, scan.ID, mustJSON(cursor)); err != nil {
			return fmt.Errorf("saving embed cursor: %w", err)
		}
		return nil
	}

	for i := range prs {
		if prs[i].Number <= cursor.LastPR {
			continue
		}
		batch = append(batch, &prs[i])
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return "", err
			}
			if stop, err := d.paused(ctx, scan.ID); err != nil || stop {
				return "", err
			}
		}
	}
	if err := flush(); err != nil {
		return "", err
	}

	log.Info("embed done", "embedded", embedded)
	if err := d.advance(ctx, models.JobTypeCluster, job.Payload); err != nil {
		return "", err
	}
	return mustJSON(map[string]int{"embedded": embedded}), nil
}

// embedBatch embeds one batch of PRs into both collections and upserts
// the points. Upserts are keyed by PR, so re-running a batch after a
// crash overwrites rather than duplicates.
func (d *Deps) embedBatch(ctx context.Context, repoID int64, prs []*models.PullRequest, budget int) error {
	codeTexts := make([]string, len(prs))
	intentTexts := make([]string, len(prs))
	for i, pr := range prs {
		codeTexts[i] = codeText(pr, budget)
		it, err := d.intentText(ctx, pr, budget)
		if err != nil {
			return err
		}
		intentTexts[i] = it
	}

	codeVecs, err := d.Embedder.Embed(ctx, codeTexts)
	if err != nil {
		return fmt.Errorf("embedding code texts: %w", err)
	}
	intentVecs, err := d.Embedder.Embed(ctx, intentTexts)
	if err != nil {
		return fmt.Errorf("embedding intent texts: %w", err)
	}

	codePoints := make([]vector.Point, len(prs))
	intentPoints := make([]vector.Point, len(prs))
	for i, pr := range prs {
		payload := vector.Payload{RepoID: repoID, PRNumber: pr.Number}
		codePoints[i] = vector.Point{
			Key:     vector.PointKey(repoID, pr.Number, vector.CollectionCode),
			Vector:  codeVecs[i],
			Payload: payload,
		}
		intentPoints[i] = vector.Point{
			Key:     vector.PointKey(repoID, pr.Number, vector.CollectionIntent),
			Vector:  intentVecs[i],
			Payload: payload,
		}
	}
	if err := d.Vectors.Upsert(ctx, vector.CollectionCode, codePoints); err != nil {
		return fmt.Errorf("upserting code vectors: %w", err)
	}
	if err := d.Vectors.Upsert(ctx, vector.CollectionIntent, intentPoints); err != nil {
		return fmt.Errorf("upserting intent vectors: %w", err)
	}
	return nil
}

// codeText is what the code collection embeds: title, file list, and
// the normalised diff. Only the diff is truncated, so the title and
// paths survive even for very large changes.
func codeText(pr *models.PullRequest, budget int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", pr.Title)
	if files := filePathList(pr.FilePaths); len(files) > 0 {
		fmt.Fprintf(&sb, "Files changed:\n%s\n", strings.Join(files, "\n"))
	}
	remaining := budget - estimateTokens(sb.String())
	if diff := truncateToTokens(pr.Diff, remaining); diff != "" {
		fmt.Fprintf(&sb, "Diff:\n%s", diff)
	}
	return sb.String()
}

// intentText is what the intent collection embeds: either a
// deterministic template over title, body, and files, or a model
// summary when summaries are enabled.
func (d *Deps) intentText(ctx context.Context, pr *models.PullRequest, budget int) (string, error) {
	if d.IntentSummaries {
		resp, err := d.Chat.Chat(ctx, summarySystemPrompt, summaryUserPrompt(pr), 256)
		if err != nil {
			return "", fmt.Errorf("summarising #%d: %w", pr.Number, err)
		}
		if resp.Text != "" {
			return resp.Text, nil
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", pr.Title)
	if body := strings.TrimSpace(pr.Body); body != "" {
		fmt.Fprintf(&sb, "Description: %s\n", body)
	}
	if files := filePathList(pr.FilePaths); len(files) > 0 {
		fmt.Fprintf(&sb, "Files: %s\n", strings.Join(files, ", "))
	}
	return truncateToTokens(sb.String(), budget), nil
}
