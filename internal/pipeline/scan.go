package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// StartScan creates a scan row for the repo and enqueues the pipeline
// entry job. Returns store.ErrActiveScan when the repo already has a
// scan in flight.
func StartScan(ctx context.Context, d *Deps, repoID int64) (*models.Scan, error) {
	scan, err := d.Store.CreateScan(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if _, err := d.Queue.Enqueue(ctx, models.JobTypeScan, mustJSON(scanPayload{ScanID: scan.ID}), d.Config.MaxRetries, zeroTime); err != nil {
		return nil, fmt.Errorf("enqueueing scan job: %w", err)
	}
	return scan, nil
}

// ResumeScan moves a paused scan back to queued and re-enters the
// pipeline. Completed phases are skipped by their own idempotency:
// ingest re-upserts, embed skips vectors that already exist, and
// cluster onward recompute from stored state.
func ResumeScan(ctx context.Context, d *Deps, scanID int64) error {
	if err := d.Store.ResumeScan(ctx, scanID); err != nil {
		return err
	}
	if _, err := d.Queue.Enqueue(ctx, models.JobTypeScan, mustJSON(scanPayload{ScanID: scanID}), d.Config.MaxRetries, zeroTime); err != nil {
		return fmt.Errorf("enqueueing scan job: %w", err)
	}
	return nil
}

// processScan is the pipeline entry point: it validates the scan and
// hands off to ingest.
func (d *Deps) processScan(ctx context.Context, job *models.Job) (string, error) {
	var p scanPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding scan payload: %w", err))
	}

	scan, err := d.Store.GetScan(ctx, p.ScanID)
	if err != nil {
		return "", queue.NonRetryable(fmt.Errorf("loading scan %d: %w", p.ScanID, err))
	}
	if !scan.Active() || scan.Status == models.ScanStatusPaused {
		return "", nil
	}

	d.Logger.Info("scan starting", "scan", scan.ID, "repo", scan.RepoID)
	if err := d.advance(ctx, models.JobTypeIngest, job.Payload); err != nil {
		return "", err
	}
	return "", nil
}
