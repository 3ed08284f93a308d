package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
)

// Scheduler loads rescan_schedules from the database and registers
// them with robfig/cron. When a schedule fires it starts a scan of the
// repo, unless one is already running.
type Scheduler struct {
	db   database.DB
	deps *pipeline.Deps

	cron *cron.Cron

	mu      sync.Mutex
	entries map[int64]cron.EntryID // schedule DB id -> cron entry id
}

func newScheduler(db database.DB, deps *pipeline.Deps) *Scheduler {
	return &Scheduler{
		db:      db,
		deps:    deps,
		cron:    cron.New(),
		entries: make(map[int64]cron.EntryID),
	}
}

// Start loads all enabled schedules and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	var schedules []Schedule
	if err := s.db.Select(ctx, &schedules,
		`SELECT id, repo_id, expr, profile, enabled, last_run_at, created_at, updated_at
		 FROM rescan_schedules WHERE enabled = 1`,
	); err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: skipping schedule with invalid expression",
				"id", sched.ID, "expr", sched.Expr, "error", err)
		}
	}

	s.cron.Start()
	slog.Info("rescan scheduler started", "schedules_loaded", len(schedules))
	return nil
}

// Stop halts the cron runner gracefully.
func (s *Scheduler) Stop() { s.cron.Stop() }

func (s *Scheduler) register(sched Schedule) error {
	entryID, err := s.cron.AddFunc(sched.Expr, func() {
		s.fire(context.Background(), sched)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.Expr, err)
	}
	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.mu.Unlock()
	return nil
}

// fire starts a scan for the schedule's repo. A repo with a scan
// already in flight is skipped, not queued behind it.
func (s *Scheduler) fire(ctx context.Context, sched Schedule) {
	scan, err := pipeline.StartScan(ctx, s.deps, sched.RepoID)
	if errors.Is(err, store.ErrActiveScan) {
		slog.Info("scheduled rescan skipped, scan already active", "schedule", sched.ID, "repo", sched.RepoID)
		return
	}
	if err != nil {
		slog.Warn("scheduled rescan failed to start", "schedule", sched.ID, "repo", sched.RepoID, "error", err)
		return
	}
	slog.Info("scheduled rescan started",
		"schedule", sched.ID, "repo", sched.RepoID, "scan", scan.ID, "profile", sched.Profile)

	if err := s.db.Exec(ctx,
		`UPDATE rescan_schedules SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), sched.ID); err != nil {
		slog.Warn("recording schedule run failed", "schedule", sched.ID, "error", err)
	}
}

// validateExpr checks that expr is parseable by robfig/cron without
// adding it permanently to any runner.
func validateExpr(expr string) error {
	tmp := cron.New()
	id, err := tmp.AddFunc(expr, func() {})
	if err != nil {
		return err
	}
	tmp.Remove(id)
	return nil
}

// Add validates, persists, and registers a new schedule. Returns the
// new DB id.
func (s *Scheduler) Add(ctx context.Context, sched Schedule) (int64, error) {
	if err := validateExpr(sched.Expr); err != nil {
		return 0, fmt.Errorf("invalid schedule expression %q: %w", sched.Expr, err)
	}
	now := time.Now().UTC()
	sched.Enabled = true
	sched.CreatedAt = now
	sched.UpdatedAt = now

	id, err := s.db.Insert(ctx, "rescan_schedules", sched)
	if err != nil {
		return 0, err
	}
	sched.ID = id
	if err := s.register(sched); err != nil {
		slog.Warn("scheduler: persisted but could not register schedule", "id", id, "error", err)
	}
	return id, nil
}

// Remove deletes a schedule and unregisters its cron entry.
func (s *Scheduler) Remove(ctx context.Context, id int64) error {
	if err := s.db.Exec(ctx, `DELETE FROM rescan_schedules WHERE id = ?`, id); err != nil {
		return err
	}
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return nil
}

// List returns all schedules, enabled or not.
func (s *Scheduler) List(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	err := s.db.Select(ctx, &schedules,
		`SELECT id, repo_id, expr, profile, enabled, last_run_at, created_at, updated_at
		 FROM rescan_schedules ORDER BY id`)
	return schedules, err
}
