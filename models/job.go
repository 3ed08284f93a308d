package models

import "time"

// Job statuses.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
	JobStatusPaused  = "paused"
)

// Job types, one per pipeline phase plus the scan orchestrator.
const (
	JobTypeScan    = "scan"
	JobTypeIngest  = "ingest"
	JobTypeEmbed   = "embed"
	JobTypeCluster = "cluster"
	JobTypeVerify  = "verify"
	JobTypeRank    = "rank"
)

// Job is one unit of durable queued work. Payload and Result are JSON
// text; RunAfter schedules delivery (retries push it into the future).
type Job struct {
	ID         int64     `json:"id"          db:"id"`
	Type       string    `json:"type"        db:"type"`
	Payload    string    `json:"payload"     db:"payload"`
	Status     string    `json:"status"      db:"status"`
	Result     string    `json:"result"      db:"result"`
	Error      string    `json:"error"       db:"error"`
	Attempts   int       `json:"attempts"    db:"attempts"`
	MaxRetries int       `json:"max_retries" db:"max_retries"`
	RunAfter   time.Time `json:"run_after"   db:"run_after"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}
