// Package githost talks to the pull-request hosting service. The Host
// interface keeps the pipeline testable against a fake; the only real
// implementation is GitHub.
package githost

import (
	"context"
	"time"
)

// PR is a normalized open pull request as fetched from the host.
type PR struct {
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	UpdatedAt time.Time
	CreatedAt time.Time
}

// ChangedFile is one file touched by a pull request.
type ChangedFile struct {
	Path      string
	Additions int
	Deletions int
}

// Host is the read surface the scan pipeline needs from a code host.
type Host interface {
	// ListOpenPRs returns one page of open PRs ordered by number
	// ascending. page is 1-indexed; a short (or empty) page ends
	// pagination.
	ListOpenPRs(ctx context.Context, owner, repo string, page int) ([]PR, error)
	// ListPRFiles returns every file the PR touches.
	ListPRFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error)
	// GetPRDiff returns the unified diff for the PR.
	GetPRDiff(ctx context.Context, owner, repo string, number int) (string, error)
}

// PerPage is the page size used for PR listing.
const PerPage = 100
