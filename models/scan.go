package models

import "time"

// Scan statuses. A scan moves monotonically along the phase sequence;
// "paused" is reversible, "failed" and "done" are terminal.
const (
	ScanStatusQueued     = "queued"
	ScanStatusIngesting  = "ingesting"
	ScanStatusEmbedding  = "embedding"
	ScanStatusClustering = "clustering"
	ScanStatusVerifying  = "verifying"
	ScanStatusRanking    = "ranking"
	ScanStatusDone       = "done"
	ScanStatusFailed     = "failed"
	ScanStatusPaused     = "paused"
)

// Scan tracks one run of the duplicate-detection pipeline over a repo.
// PhaseCursor is opaque JSON owned exclusively by the processor of the
// scan's current phase; it is the resume point after a crash.
type Scan struct {
	ID             int64      `json:"id"               db:"id"`
	RepoID         int64      `json:"repo_id"          db:"repo_id"`
	Status         string     `json:"status"           db:"status"`
	PhaseCursor    string     `json:"phase_cursor"     db:"phase_cursor"`
	PRCount        int        `json:"pr_count"         db:"pr_count"`
	DupeGroupCount int        `json:"dupe_group_count" db:"dupe_group_count"`
	StartedAt      time.Time  `json:"started_at"       db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"     db:"completed_at"`
	Error          string     `json:"error"            db:"error"`
}

// Active reports whether the scan is non-terminal. At most one active
// scan may exist per repo at any time.
func (s Scan) Active() bool {
	return s.Status != ScanStatusDone && s.Status != ScanStatusFailed
}
