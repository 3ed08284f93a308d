package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

const scanColumns = `id, repo_id, status, phase_cursor, pr_count, dupe_group_count, started_at, completed_at, error`

// CreateScan persists a new queued scan. The active-scan check and the
// insert run in one transaction so two concurrent creates cannot both
// succeed for the same repo.
func (s *Store) CreateScan(ctx context.Context, repoID int64) (*models.Scan, error) {
	scan := models.Scan{
		RepoID:    repoID,
		Status:    models.ScanStatusQueued,
		StartedAt: time.Now().UTC(),
	}
	err := s.db.Tx(ctx, func(tx database.TxOps) error {
		var row countRow
		if err := tx.Get(ctx, &row,
			`SELECT COUNT(*) AS n FROM scans WHERE repo_id = ? AND status NOT IN (?, ?)`,
			repoID, models.ScanStatusDone, models.ScanStatusFailed,
		); err != nil {
			return fmt.Errorf("checking active scans: %w", err)
		}
		if row.N > 0 {
			return ErrActiveScan
		}
		id, err := tx.Insert(ctx, "scans", scan)
		if err != nil {
			return fmt.Errorf("inserting scan: %w", err)
		}
		scan.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// GetScan returns the scan by id.
func (s *Store) GetScan(ctx context.Context, id int64) (*models.Scan, error) {
	var scan models.Scan
	err := s.db.Get(ctx, &scan, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan %d: %w", id, err)
	}
	return &scan, nil
}

// ListScans returns all scans for a repo, newest first.
func (s *Store) ListScans(ctx context.Context, repoID int64) ([]models.Scan, error) {
	var scans []models.Scan
	err := s.db.Select(ctx, &scans,
		`SELECT `+scanColumns+` FROM scans WHERE repo_id = ? ORDER BY id DESC`, repoID)
	return scans, err
}

// SetScanStatus moves the scan into a phase status and clears the
// cursor left by the previous phase. The first durable write of every
// phase processor.
func (s *Store) SetScanStatus(ctx context.Context, id int64, status string) error {
	return s.db.Exec(ctx,
		`UPDATE scans SET status = ?, phase_cursor = '' WHERE id = ? AND status != ?`,
		status, id, status)
}

// SetPhaseCursor records the current phase's resume point.
func (s *Store) SetPhaseCursor(ctx context.Context, id int64, cursor string) error {
	return s.db.Exec(ctx, `UPDATE scans SET phase_cursor = ? WHERE id = ?`, cursor, id)
}

// SetScanPRCount records how many open PRs the scan covers.
func (s *Store) SetScanPRCount(ctx context.Context, id int64, n int) error {
	return s.db.Exec(ctx, `UPDATE scans SET pr_count = ? WHERE id = ?`, n, id)
}

// FailScan terminates the scan with an error message.
func (s *Store) FailScan(ctx context.Context, id int64, msg string) error {
	now := time.Now().UTC()
	return s.db.Exec(ctx,
		`UPDATE scans SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		models.ScanStatusFailed, msg, now, id)
}

// CompleteScan terminates the scan successfully with its group count.
func (s *Store) CompleteScan(ctx context.Context, id int64, groupCount int) error {
	now := time.Now().UTC()
	return s.db.Exec(ctx,
		`UPDATE scans SET status = ?, dupe_group_count = ?, phase_cursor = '', completed_at = ? WHERE id = ?`,
		models.ScanStatusDone, groupCount, now, id)
}

// PauseScan marks the scan paused; the next phase boundary check aborts.
func (s *Store) PauseScan(ctx context.Context, id int64) error {
	return s.db.Exec(ctx,
		`UPDATE scans SET status = ? WHERE id = ? AND status NOT IN (?, ?)`,
		models.ScanStatusPaused, id, models.ScanStatusDone, models.ScanStatusFailed)
}

// ResumeScan puts a paused scan back into queued state; callers enqueue
// a fresh scan job to restart the pipeline from the recorded cursor.
func (s *Store) ResumeScan(ctx context.Context, id int64) error {
	return s.db.Exec(ctx,
		`UPDATE scans SET status = ? WHERE id = ? AND status = ?`,
		models.ScanStatusQueued, id, models.ScanStatusPaused)
}
