// Package pipeline implements the five scan phases as job-queue
// processors: ingest, embed, cluster, verify, rank. Each phase records
// its resume point in the scan's phase cursor and hands off to the next
// phase by enqueueing its job, so a crashed or restarted worker picks
// up where the previous one stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/ai"
	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/githost"
	"github.com/dhruvparmar372/ossgard-sub002/internal/notify"
	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// Deps bundles everything the phase processors need.
type Deps struct {
	Store    *store.Store
	Queue    *queue.Queue
	Host     githost.Host
	Chat     ai.ChatProvider
	Embedder ai.EmbeddingProvider
	Vectors  vector.Store
	Notify   *notify.Dispatcher
	Config   config.ScanConfig
	Logger   *slog.Logger

	// IntentSummaries swaps the deterministic intent text for a
	// model-written summary of each PR.
	IntentSummaries bool
	// EmbedContextTokens is the embedding model's context window.
	EmbedContextTokens int
}

// Register wires every phase processor into the worker and installs
// the final-failure hook that fails the owning scan.
func Register(w *queue.Worker, d *Deps) {
	w.Register(processor{models.JobTypeScan, d.processScan})
	w.Register(processor{models.JobTypeIngest, d.processIngest})
	w.Register(processor{models.JobTypeEmbed, d.processEmbed})
	w.Register(processor{models.JobTypeCluster, d.processCluster})
	w.Register(processor{models.JobTypeVerify, d.processVerify})
	w.Register(processor{models.JobTypeRank, d.processRank})
	w.OnFinalFailure = d.onFinalFailure
}

type processor struct {
	typ string
	fn  func(ctx context.Context, job *models.Job) (string, error)
}

func (p processor) Type() string { return p.typ }

func (p processor) Process(ctx context.Context, job *models.Job) (string, error) {
	return p.fn(ctx, job)
}

// scanPayload is the payload shared by scan, ingest, embed, and
// cluster jobs.
type scanPayload struct {
	ScanID int64 `json:"scan_id"`
}

// verifyPayload carries the cluster phase's candidate groups into the
// verify phase.
type verifyPayload struct {
	ScanID int64   `json:"scan_id"`
	Groups [][]int `json:"groups"`
}

// confirmedGroup is one LLM-confirmed duplicate set handed to rank.
type confirmedGroup struct {
	Numbers      []int   `json:"numbers"`
	Confidence   float64 `json:"confidence"`
	Relationship string  `json:"relationship"`
}

// rankPayload carries confirmed groups into the rank phase.
type rankPayload struct {
	ScanID int64            `json:"scan_id"`
	Groups []confirmedGroup `json:"groups"`
}

// zeroTime means "eligible immediately" when enqueueing.
var zeroTime time.Time

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// beginPhase loads the scan and its repo and moves the scan into the
// phase status. Returns run=false when the scan is paused or terminal,
// in which case the job should complete without doing anything.
func (d *Deps) beginPhase(ctx context.Context, scanID int64, status string) (scan *models.Scan, repo *models.Repo, run bool, err error) {
	scan, err = d.Store.GetScan(ctx, scanID)
	if err != nil {
		return nil, nil, false, queue.NonRetryable(fmt.Errorf("loading scan %d: %w", scanID, err))
	}
	switch scan.Status {
	case models.ScanStatusDone, models.ScanStatusFailed:
		d.Logger.Info("scan already terminal, skipping phase", "scan", scanID, "status", scan.Status, "phase", status)
		return scan, nil, false, nil
	case models.ScanStatusPaused:
		d.Logger.Info("scan paused, halting", "scan", scanID, "phase", status)
		return scan, nil, false, nil
	}

	repo, err = d.Store.GetRepo(ctx, scan.RepoID)
	if err != nil {
		return nil, nil, false, queue.NonRetryable(fmt.Errorf("loading repo %d: %w", scan.RepoID, err))
	}

	if scan.Status != status {
		if err := d.Store.SetScanStatus(ctx, scanID, status); err != nil {
			return nil, nil, false, fmt.Errorf("entering %s phase: %w", status, err)
		}
		scan.Status = status
		scan.PhaseCursor = ""
	}
	return scan, repo, true, nil
}

// paused re-checks the pause flag between batches so a pause request
// takes effect at the next durable checkpoint instead of mid-write.
func (d *Deps) paused(ctx context.Context, scanID int64) (bool, error) {
	scan, err := d.Store.GetScan(ctx, scanID)
	if err != nil {
		return false, fmt.Errorf("checking pause state: %w", err)
	}
	return scan.Status == models.ScanStatusPaused || !scan.Active(), nil
}

// advance enqueues the next phase's job.
func (d *Deps) advance(ctx context.Context, jobType, payload string) error {
	if _, err := d.Queue.Enqueue(ctx, jobType, payload, d.Config.MaxRetries, zeroTime); err != nil {
		return fmt.Errorf("enqueueing %s job: %w", jobType, err)
	}
	return nil
}

// onFinalFailure fails the scan a permanently failed job belongs to.
func (d *Deps) onFinalFailure(ctx context.Context, job *models.Job, failure error) {
	var p scanPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil || p.ScanID == 0 {
		return
	}
	msg := fmt.Sprintf("%s phase failed: %v", job.Type, failure)
	if err := d.Store.FailScan(ctx, p.ScanID, msg); err != nil {
		d.Logger.Error("failing scan after job failure", "scan", p.ScanID, "error", err)
		return
	}
	d.Logger.Error("scan failed", "scan", p.ScanID, "job", job.ID, "error", failure)

	if d.Notify != nil {
		if scan, err := d.Store.GetScan(ctx, p.ScanID); err == nil {
			if repo, err := d.Store.GetRepo(ctx, scan.RepoID); err == nil {
				d.Notify.ScanFailed(ctx, repo, scan, msg)
			}
		}
	}
}
