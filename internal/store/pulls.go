package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dhruvparmar372/ossgard-sub002/models"
)

const prColumns = `id, repo_id, number, title, body, author, diff_hash, diff, file_paths, state, updated_at, created_at`

// UpsertPR inserts or updates a pull request keyed on (repo_id, number).
// Running ingest twice therefore never duplicates rows.
func (s *Store) UpsertPR(ctx context.Context, pr *models.PullRequest) error {
	if err := s.db.Upsert(ctx, "pull_requests", *pr, []string{"repo_id", "number"}); err != nil {
		return fmt.Errorf("upserting PR %d#%d: %w", pr.RepoID, pr.Number, err)
	}
	return nil
}

// GetPR returns a pull request by (repoID, number).
func (s *Store) GetPR(ctx context.Context, repoID int64, number int) (*models.PullRequest, error) {
	var pr models.PullRequest
	err := s.db.Get(ctx, &pr,
		`SELECT `+prColumns+` FROM pull_requests WHERE repo_id = ? AND number = ?`,
		repoID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading PR %d#%d: %w", repoID, number, err)
	}
	return &pr, nil
}

// ListOpenPRs returns all open pull requests for the repo ordered by number.
func (s *Store) ListOpenPRs(ctx context.Context, repoID int64) ([]models.PullRequest, error) {
	var prs []models.PullRequest
	err := s.db.Select(ctx, &prs,
		`SELECT `+prColumns+` FROM pull_requests WHERE repo_id = ? AND state = ? ORDER BY number`,
		repoID, models.PRStateOpen)
	return prs, err
}

// CountOpenPRs counts open pull requests for the repo.
func (s *Store) CountOpenPRs(ctx context.Context, repoID int64) (int, error) {
	var row countRow
	err := s.db.Get(ctx, &row,
		`SELECT COUNT(*) AS n FROM pull_requests WHERE repo_id = ? AND state = ?`,
		repoID, models.PRStateOpen)
	return row.N, err
}

// CloseMissingPRs marks as closed every stored open PR whose number is
// absent from openNumbers (the freshly fetched open set). Returns the
// number of PRs closed this way.
func (s *Store) CloseMissingPRs(ctx context.Context, repoID int64, openNumbers []int) (int64, error) {
	query := `UPDATE pull_requests SET state = ? WHERE repo_id = ? AND state = ?`
	args := []interface{}{models.PRStateClosed, repoID, models.PRStateOpen}
	if len(openNumbers) > 0 {
		query += ` AND number NOT IN (` + placeholders(len(openNumbers)) + `)`
		for _, n := range openNumbers {
			args = append(args, n)
		}
	}
	affected, err := s.db.ExecAffected(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("closing stale PRs for repo %d: %w", repoID, err)
	}
	return affected, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ",")
}
