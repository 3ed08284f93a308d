package models

// DupeGroup is a verified set of duplicate pull requests produced by the
// rank phase. Immutable once written.
type DupeGroup struct {
	ID      int64  `json:"id"       db:"id"`
	ScanID  int64  `json:"scan_id"  db:"scan_id"`
	RepoID  int64  `json:"repo_id"  db:"repo_id"`
	Label   string `json:"label"    db:"label"`
	PRCount int    `json:"pr_count" db:"pr_count"`
}

// DupeGroupMember places one PR inside a group. Rank is 1-indexed;
// rank 1 is the PR a maintainer should keep.
type DupeGroupMember struct {
	ID        int64   `json:"id"         db:"id"`
	GroupID   int64   `json:"group_id"   db:"group_id"`
	PRID      int64   `json:"pr_id"      db:"pr_id"`
	Rank      int     `json:"rank"       db:"pr_rank"` // "rank" is reserved in MySQL 8
	Score     float64 `json:"score"      db:"score"`
	Rationale string  `json:"rationale"  db:"rationale"`
}

// GroupMemberDetail joins a member row with its PR metadata for the
// control surface's group listing.
type GroupMemberDetail struct {
	GroupID   int64   `json:"group_id"   db:"group_id"`
	PRID      int64   `json:"pr_id"      db:"pr_id"`
	Rank      int     `json:"rank"       db:"pr_rank"`
	Score     float64 `json:"score"      db:"score"`
	Rationale string  `json:"rationale"  db:"rationale"`
	PRNumber  int     `json:"pr_number"  db:"pr_number"`
	PRTitle   string  `json:"pr_title"   db:"pr_title"`
	PRAuthor  string  `json:"pr_author"  db:"pr_author"`
	PRState   string  `json:"pr_state"   db:"pr_state"`
}
