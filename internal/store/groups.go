package store

import (
	"context"
	"fmt"

	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// InsertGroup writes one dupe group and all its members atomically.
// Members arrive rank-ordered; the group id is filled in on each.
func (s *Store) InsertGroup(ctx context.Context, group *models.DupeGroup, members []models.DupeGroupMember) error {
	return s.insertGroup(ctx, group, members, "")
}

// InsertGroupWithCursor writes the group, its members, and the owning
// scan's phase cursor in one transaction. A job redelivered after a
// crash therefore sees a cursor that already covers the group and
// never inserts it twice.
func (s *Store) InsertGroupWithCursor(ctx context.Context, group *models.DupeGroup, members []models.DupeGroupMember, cursor string) error {
	return s.insertGroup(ctx, group, members, cursor)
}

func (s *Store) insertGroup(ctx context.Context, group *models.DupeGroup, members []models.DupeGroupMember, cursor string) error {
	if len(members) < 2 {
		return fmt.Errorf("dupe group requires at least 2 members, got %d", len(members))
	}
	group.PRCount = len(members)
	return s.db.Tx(ctx, func(tx database.TxOps) error {
		id, err := tx.Insert(ctx, "dupe_groups", *group)
		if err != nil {
			return fmt.Errorf("inserting group: %w", err)
		}
		group.ID = id
		for i := range members {
			members[i].GroupID = id
			if _, err := tx.Insert(ctx, "dupe_group_members", members[i]); err != nil {
				return fmt.Errorf("inserting group member %d: %w", members[i].PRID, err)
			}
		}
		if cursor != "" {
			if err := tx.Exec(ctx,
				`UPDATE scans SET phase_cursor = ? WHERE id = ?`,
				cursor, group.ScanID); err != nil {
				return fmt.Errorf("updating phase cursor: %w", err)
			}
		}
		return nil
	})
}

// ListGroups returns all dupe groups for a scan ordered by id.
func (s *Store) ListGroups(ctx context.Context, scanID int64) ([]models.DupeGroup, error) {
	var groups []models.DupeGroup
	err := s.db.Select(ctx, &groups,
		`SELECT id, scan_id, repo_id, label, pr_count FROM dupe_groups WHERE scan_id = ? ORDER BY id`,
		scanID)
	return groups, err
}

// ListGroupMembers returns members for every group in the scan, joined
// with PR metadata, ordered by group then rank.
func (s *Store) ListGroupMembers(ctx context.Context, scanID int64) ([]models.GroupMemberDetail, error) {
	var members []models.GroupMemberDetail
	err := s.db.Select(ctx, &members,
		`SELECT m.group_id, m.pr_id, m.pr_rank, m.score, m.rationale,
		        p.number AS pr_number, p.title AS pr_title, p.author AS pr_author, p.state AS pr_state
		   FROM dupe_group_members m
		   JOIN dupe_groups g ON g.id = m.group_id
		   JOIN pull_requests p ON p.id = m.pr_id
		  WHERE g.scan_id = ?
		  ORDER BY m.group_id, m.pr_rank`,
		scanID)
	return members, err
}

// CountGroups counts dupe groups under a scan.
func (s *Store) CountGroups(ctx context.Context, scanID int64) (int, error) {
	var row countRow
	err := s.db.Get(ctx, &row, `SELECT COUNT(*) AS n FROM dupe_groups WHERE scan_id = ?`, scanID)
	return row.N, err
}
