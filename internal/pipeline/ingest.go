package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/githost"
	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// ingestCursor is the ingest phase's resume point: the next page to
// fetch and the open PR numbers seen on completed pages.
type ingestCursor struct {
	Page int   `json:"page"`
	Open []int `json:"open"`
}

// processIngest pages through the repo's open PRs, upserting each with
// its normalised diff and diff hash. The cursor advances only after a
// full page is durably written, so a crashed worker re-fetches at most
// one page.
func (d *Deps) processIngest(ctx context.Context, job *models.Job) (string, error) {
	var p scanPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding ingest payload: %w", err))
	}

	scan, repo, run, err := d.beginPhase(ctx, p.ScanID, models.ScanStatusIngesting)
	if err != nil || !run {
		return "", err
	}

	cursor := ingestCursor{Page: 1}
	if scan.PhaseCursor != "" {
		if err := json.Unmarshal([]byte(scan.PhaseCursor), &cursor); err != nil {
			d.Logger.Warn("unreadable ingest cursor, restarting phase", "scan", scan.ID, "error", err)
			cursor = ingestCursor{Page: 1, Open: nil}
		}
	}

	log := d.Logger.With("scan", scan.ID, "repo", repo.FullName())
	log.Info("ingest starting", "page", cursor.Page)

	for {
		prs, err := d.Host.ListOpenPRs(ctx, repo.Owner, repo.Name, cursor.Page)
		if err != nil {
			return "", fmt.Errorf("listing open PRs: %w", err)
		}

		for i := range prs {
			if err := d.ingestPR(ctx, repo, &prs[i]); err != nil {
				return "", err
			}
			cursor.Open = append(cursor.Open, prs[i].Number)
		}

		if len(prs) < githost.PerPage {
			break
		}
		cursor.Page++
		if err := d.Store.SetPhaseCursor(ctx, scan.ID, mustJSON(cursor)); err != nil {
			return "", fmt.Errorf("saving ingest cursor: %w", err)
		}
		if stop, err := d.paused(ctx, scan.ID); err != nil || stop {
			return "", err
		}
	}

	closed, err := d.Store.CloseMissingPRs(ctx, repo.ID, cursor.Open)
	if err != nil {
		return "", err
	}
	if err := d.Store.SetScanPRCount(ctx, scan.ID, len(cursor.Open)); err != nil {
		return "", fmt.Errorf("recording PR count: %w", err)
	}

	log.Info("ingest done", "open_prs", len(cursor.Open), "stale_closed", closed)
	if err := d.advance(ctx, models.JobTypeEmbed, job.Payload); err != nil {
		return "", err
	}
	return mustJSON(map[string]int{"open_prs": len(cursor.Open)}), nil
}

// ingestPR fetches one PR's files and diff and upserts the row. A PR
// whose stored copy is at least as fresh as the listing's updated_at is
// skipped without touching the host again, which keeps repeated scans
// of a quiet repo cheap.
func (d *Deps) ingestPR(ctx context.Context, repo *models.Repo, hpr *githost.PR) error {
	if !hpr.UpdatedAt.IsZero() {
		stored, err := d.Store.GetPR(ctx, repo.ID, hpr.Number)
		if err == nil && stored.State == models.PRStateOpen &&
			!stored.UpdatedAt.Before(hpr.UpdatedAt.UTC()) {
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	files, err := d.Host.ListPRFiles(ctx, repo.Owner, repo.Name, hpr.Number)
	if err != nil {
		return fmt.Errorf("listing files for #%d: %w", hpr.Number, err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	diff, err := d.Host.GetPRDiff(ctx, repo.Owner, repo.Name, hpr.Number)
	if err != nil {
		return fmt.Errorf("fetching diff for #%d: %w", hpr.Number, err)
	}
	normalized := normalizeDiff(diff)

	pr := models.PullRequest{
		RepoID:    repo.ID,
		Number:    hpr.Number,
		Title:     hpr.Title,
		Body:      hpr.Body,
		Author:    hpr.Author,
		DiffHash:  hashDiff(normalized),
		Diff:      truncateStoredDiff(normalized),
		FilePaths: mustJSON(paths),
		State:     models.PRStateOpen,
		UpdatedAt: hpr.UpdatedAt.UTC(),
		CreatedAt: hpr.CreatedAt.UTC(),
	}
	if pr.UpdatedAt.IsZero() {
		pr.UpdatedAt = time.Now().UTC()
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = pr.UpdatedAt
	}
	return d.Store.UpsertPR(ctx, &pr)
}
