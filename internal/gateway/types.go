package gateway

import "time"

// Schedule is one row of rescan_schedules: a cron expression that
// starts a fresh scan of a repo when it fires.
type Schedule struct {
	ID        int64      `json:"id"          db:"id"`
	RepoID    int64      `json:"repo_id"     db:"repo_id"`
	Expr      string     `json:"expr"        db:"expr"`
	Profile   string     `json:"profile"     db:"profile"`
	Enabled   bool       `json:"enabled"     db:"enabled"`
	LastRunAt *time.Time `json:"last_run_at" db:"last_run_at"`
	CreatedAt time.Time  `json:"created_at"  db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"  db:"updated_at"`
}

// statusResponse is the GET /api/status body.
type statusResponse struct {
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	Repos     int    `json:"repos"`
	Workers   int    `json:"workers"`
}

// createRepoRequest is the POST /api/repos body.
type createRepoRequest struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// createScanRequest is the POST /api/scans body.
type createScanRequest struct {
	RepoID int64 `json:"repo_id"`
}

// createScheduleRequest is the POST /api/schedules body.
type createScheduleRequest struct {
	RepoID  int64  `json:"repo_id"`
	Expr    string `json:"expr"`
	Profile string `json:"profile"`
}
