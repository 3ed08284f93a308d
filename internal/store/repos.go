package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// CreateRepo registers a repo for tracking. Unique on (owner, name).
func (s *Store) CreateRepo(ctx context.Context, owner, name string) (*models.Repo, error) {
	repo := models.Repo{
		Owner:     owner,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.db.Insert(ctx, "repos", repo)
	if err != nil {
		return nil, fmt.Errorf("creating repo %s/%s: %w", owner, name, err)
	}
	repo.ID = id
	return &repo, nil
}

// GetRepo returns the repo by id.
func (s *Store) GetRepo(ctx context.Context, id int64) (*models.Repo, error) {
	var repo models.Repo
	err := s.db.Get(ctx, &repo,
		`SELECT id, owner, name, last_scan_at, created_at FROM repos WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading repo %d: %w", id, err)
	}
	return &repo, nil
}

// GetRepoByName returns the repo by (owner, name).
func (s *Store) GetRepoByName(ctx context.Context, owner, name string) (*models.Repo, error) {
	var repo models.Repo
	err := s.db.Get(ctx, &repo,
		`SELECT id, owner, name, last_scan_at, created_at FROM repos WHERE owner = ? AND name = ?`,
		owner, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading repo %s/%s: %w", owner, name, err)
	}
	return &repo, nil
}

// ListRepos returns all tracked repos ordered by id.
func (s *Store) ListRepos(ctx context.Context) ([]models.Repo, error) {
	var repos []models.Repo
	err := s.db.Select(ctx, &repos,
		`SELECT id, owner, name, last_scan_at, created_at FROM repos ORDER BY id`)
	return repos, err
}

// DeleteRepo removes a repo; foreign keys cascade to PRs, scans, and groups.
func (s *Store) DeleteRepo(ctx context.Context, id int64) error {
	return s.db.Exec(ctx, `DELETE FROM repos WHERE id = ?`, id)
}

// TouchLastScan records when the repo was last scanned.
func (s *Store) TouchLastScan(ctx context.Context, id int64, at time.Time) error {
	return s.db.Exec(ctx, `UPDATE repos SET last_scan_at = ? WHERE id = ?`, at.UTC(), id)
}
