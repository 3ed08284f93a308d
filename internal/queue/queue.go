// Package queue implements the durable FIFO job queue backing the scan
// pipeline. Jobs live in the jobs table of the shared relational store,
// so queued work survives process restarts; delivery is at-least-once
// with exponential-backoff retries.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// DefaultMaxRetries is the retry ceiling applied when Enqueue receives 0.
const DefaultMaxRetries = 3

// defaultBackoffBase is the first retry delay; attempt n waits
// base * 2^(n-1) plus jitter.
const defaultBackoffBase = time.Second

// nonRetryable wraps an error the worker must not retry.
type nonRetryable struct {
	err error
}

func (n *nonRetryable) Error() string { return n.err.Error() }
func (n *nonRetryable) Unwrap() error { return n.err }

// NonRetryable marks err as fatal: the job fails on the next Fail call
// regardless of remaining attempts.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryable{err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) was marked
// with NonRetryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryable
	return errors.As(err, &nr)
}

// Queue is the durable job queue. All methods are safe for concurrent
// use from multiple workers and processes sharing the database.
type Queue struct {
	db          database.DB
	backoffBase time.Duration
}

// New creates a Queue over db.
func New(db database.DB) *Queue {
	return &Queue{db: db, backoffBase: defaultBackoffBase}
}

// Enqueue persists a new queued job and returns its id. runAfter zero
// means immediately eligible.
func (q *Queue) Enqueue(ctx context.Context, jobType, payload string, maxRetries int, runAfter time.Time) (int64, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now().UTC()
	if runAfter.IsZero() {
		runAfter = now
	}
	job := models.Job{
		Type:       jobType,
		Payload:    payload,
		Status:     models.JobStatusQueued,
		MaxRetries: maxRetries,
		RunAfter:   runAfter.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := q.db.Insert(ctx, "jobs", job)
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s job: %w", jobType, err)
	}
	return id, nil
}

// Claim atomically takes the oldest eligible job of any of the given
// types, marking it running and incrementing attempts. Returns nil when
// no job is eligible. The conditional update is the serialization
// point: two workers racing for the same row see exactly one affected
// row between them.
func (q *Queue) Claim(ctx context.Context, types []string, now time.Time) (*models.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	now = now.UTC()

	// A lost race re-selects at most a handful of times per poll.
	for attempt := 0; attempt < 3; attempt++ {
		job, err := q.nextEligible(ctx, types, now)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}

		affected, err := q.db.ExecAffected(ctx,
			`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`,
			models.JobStatusRunning, now, job.ID, models.JobStatusQueued)
		if err != nil {
			return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
		}
		if affected == 0 {
			continue // another worker won this row
		}
		job.Status = models.JobStatusRunning
		job.Attempts++
		return job, nil
	}
	return nil, nil
}

func (q *Queue) nextEligible(ctx context.Context, types []string, now time.Time) (*models.Job, error) {
	query := `SELECT id, type, payload, status, result, error, attempts, max_retries, run_after, created_at, updated_at
	            FROM jobs
	           WHERE status = ? AND run_after <= ? AND type IN (` + placeholders(len(types)) + `)
	           ORDER BY created_at, id LIMIT 1`
	args := []interface{}{models.JobStatusQueued, now}
	for _, t := range types {
		args = append(args, t)
	}
	var job models.Job
	err := q.db.Get(ctx, &job, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting eligible job: %w", err)
	}
	return &job, nil
}

// Complete marks the job done with an optional result document. A job
// whose row vanished mid-flight (repo cascade delete) completes as a
// no-op.
func (q *Queue) Complete(ctx context.Context, id int64, result string) error {
	return q.db.Exec(ctx,
		`UPDATE jobs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		models.JobStatusDone, result, time.Now().UTC(), id)
}

// Fail records a failure. Retryable failures within the retry budget go
// back to queued with exponential backoff; everything else is terminal.
// Returns true when the failure was final.
func (q *Queue) Fail(ctx context.Context, job *models.Job, failure error) (bool, error) {
	now := time.Now().UTC()
	retryable := !IsNonRetryable(failure)

	if retryable && job.Attempts <= job.MaxRetries {
		delay := q.backoff(job.Attempts)
		err := q.db.Exec(ctx,
			`UPDATE jobs SET status = ?, error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			models.JobStatusQueued, failure.Error(), now.Add(delay), now, job.ID)
		if err != nil {
			return false, fmt.Errorf("rescheduling job %d: %w", job.ID, err)
		}
		return false, nil
	}

	err := q.db.Exec(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		models.JobStatusFailed, failure.Error(), now, job.ID)
	if err != nil {
		return false, fmt.Errorf("failing job %d: %w", job.ID, err)
	}
	return true, nil
}

// Release returns a running job to the queue without counting a
// failure, eligible again at runAfter. Used on graceful shutdown.
func (q *Queue) Release(ctx context.Context, id int64, runAfter time.Time) error {
	return q.db.Exec(ctx,
		`UPDATE jobs SET status = ?, run_after = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.JobStatusQueued, runAfter.UTC(), time.Now().UTC(), id, models.JobStatusRunning)
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	err := q.db.Get(ctx, &job,
		`SELECT id, type, payload, status, result, error, attempts, max_retries, run_after, created_at, updated_at
		   FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", id, err)
	}
	return &job, nil
}

// List returns recent jobs, newest first.
func (q *Queue) List(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.Job
	err := q.db.Select(ctx, &jobs,
		`SELECT id, type, payload, status, result, error, attempts, max_retries, run_after, created_at, updated_at
		   FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	return jobs, err
}

// backoff computes the delay before retry n (1-indexed attempts):
// base * 2^(n-1) with up to 25% jitter.
func (q *Queue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := q.backoffBase << uint(attempts-1)
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ",?"
	}
	return out
}
