package models

import "time"

// Repo is a tracked source repository whose open pull requests get scanned.
type Repo struct {
	ID         int64      `json:"id"           db:"id"`
	Owner      string     `json:"owner"        db:"owner"`
	Name       string     `json:"name"         db:"name"`
	LastScanAt *time.Time `json:"last_scan_at" db:"last_scan_at"`
	CreatedAt  time.Time  `json:"created_at"   db:"created_at"`
}

// FullName returns "owner/name".
func (r Repo) FullName() string { return r.Owner + "/" + r.Name }

// Pull request states as stored in pull_requests.state.
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
	PRStateMerged = "merged"
)

// PullRequest is the internal record of an upstream pull request.
// DiffHash is a stable content hash of the normalised unified diff;
// two PRs sharing a non-empty DiffHash propose byte-identical changes.
type PullRequest struct {
	ID         int64     `json:"id"          db:"id"`
	RepoID     int64     `json:"repo_id"     db:"repo_id"`
	Number     int       `json:"number"      db:"number"`
	Title      string    `json:"title"       db:"title"`
	Body       string    `json:"body"        db:"body"`
	Author     string    `json:"author"      db:"author"`
	DiffHash   string    `json:"diff_hash"   db:"diff_hash"`
	Diff       string    `json:"-"           db:"diff"`       // normalised diff, capped
	FilePaths  string    `json:"file_paths"  db:"file_paths"` // JSON array, ordered
	State      string    `json:"state"       db:"state"`      // open | closed | merged
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
