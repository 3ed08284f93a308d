package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "store.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testPR(repoID int64, number int, diffHash string) *models.PullRequest {
	now := time.Now().UTC()
	return &models.PullRequest{
		RepoID:    repoID,
		Number:    number,
		Title:     "fix flaky retry",
		Author:    "octocat",
		DiffHash:  diffHash,
		FilePaths: `["internal/retry.go"]`,
		State:     models.PRStateOpen,
		UpdatedAt: now,
		CreatedAt: now,
	}
}

func TestStore_CreateScanRejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	first, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	_, err = s.CreateScan(ctx, repo.ID)
	assert.ErrorIs(t, err, ErrActiveScan)

	// Paused still counts as active.
	require.NoError(t, s.PauseScan(ctx, first.ID))
	_, err = s.CreateScan(ctx, repo.ID)
	assert.ErrorIs(t, err, ErrActiveScan)

	// A terminal scan frees the slot.
	require.NoError(t, s.FailScan(ctx, first.ID, "provider down"))
	_, err = s.CreateScan(ctx, repo.ID)
	assert.NoError(t, err)
}

func TestStore_SetScanStatusClearsCursor(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetScanStatus(ctx, scan.ID, models.ScanStatusIngesting))
	require.NoError(t, s.SetPhaseCursor(ctx, scan.ID, `{"page":3}`))

	// Re-entering the same status keeps the cursor (job retry case).
	require.NoError(t, s.SetScanStatus(ctx, scan.ID, models.ScanStatusIngesting))
	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"page":3}`, got.PhaseCursor)

	// Moving to the next phase clears it.
	require.NoError(t, s.SetScanStatus(ctx, scan.ID, models.ScanStatusEmbedding))
	got, err = s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.PhaseCursor)
}

func TestStore_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	require.NoError(t, s.PauseScan(ctx, scan.ID))
	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPaused, got.Status)

	require.NoError(t, s.ResumeScan(ctx, scan.ID))
	got, err = s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusQueued, got.Status)

	// Pause never reopens a terminal scan.
	require.NoError(t, s.CompleteScan(ctx, scan.ID, 0))
	require.NoError(t, s.PauseScan(ctx, scan.ID))
	got, err = s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusDone, got.Status)
}

func TestStore_UpsertPRIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	pr := testPR(repo.ID, 42, "abc")
	require.NoError(t, s.UpsertPR(ctx, pr))

	pr.Title = "fix flaky retry (rebased)"
	pr.DiffHash = "def"
	require.NoError(t, s.UpsertPR(ctx, pr))

	got, err := s.GetPR(ctx, repo.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, "fix flaky retry (rebased)", got.Title)
	assert.Equal(t, "def", got.DiffHash)

	n, err := s.CountOpenPRs(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_GetPRMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.GetPR(context.Background(), 1, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CloseMissingPRs(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	for _, n := range []int{1, 2, 3} {
		require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, n, "")))
	}

	closed, err := s.CloseMissingPRs(ctx, repo.ID, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	got, err := s.GetPR(ctx, repo.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.PRStateClosed, got.State)

	open, err := s.ListOpenPRs(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, 1, open[0].Number)
	assert.Equal(t, 3, open[1].Number)
}

func TestStore_CloseMissingPRs_EmptyOpenSetClosesAll(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 1, "")))

	closed, err := s.CloseMissingPRs(ctx, repo.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)
}

func TestStore_InsertGroupRequiresTwoMembers(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	err := s.InsertGroup(ctx, &models.DupeGroup{}, []models.DupeGroupMember{{PRID: 1}})
	assert.Error(t, err)
}

func TestStore_InsertGroupAndList(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 10, "h1")))
	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 11, "h1")))
	a, err := s.GetPR(ctx, repo.ID, 10)
	require.NoError(t, err)
	b, err := s.GetPR(ctx, repo.ID, 11)
	require.NoError(t, err)

	group := &models.DupeGroup{ScanID: scan.ID, RepoID: repo.ID, Label: "retry fix"}
	members := []models.DupeGroupMember{
		{PRID: a.ID, Rank: 1, Score: 0.95, Rationale: "older, has tests"},
		{PRID: b.ID, Rank: 2, Score: 0.90, Rationale: "duplicate of #10"},
	}
	require.NoError(t, s.InsertGroup(ctx, group, members))
	assert.NotZero(t, group.ID)
	assert.Equal(t, 2, group.PRCount)

	groups, err := s.ListGroups(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "retry fix", groups[0].Label)

	details, err := s.ListGroupMembers(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, 10, details[0].PRNumber)
	assert.Equal(t, 1, details[0].Rank)
	assert.Equal(t, 11, details[1].PRNumber)

	n, err := s.CountGroups(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_InsertGroupWithCursorIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 10, "h1")))
	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 11, "h1")))
	a, err := s.GetPR(ctx, repo.ID, 10)
	require.NoError(t, err)
	b, err := s.GetPR(ctx, repo.ID, 11)
	require.NoError(t, err)

	group := &models.DupeGroup{ScanID: scan.ID, RepoID: repo.ID, Label: "retry fix"}
	members := []models.DupeGroupMember{
		{PRID: a.ID, Rank: 1, Score: 0.95},
		{PRID: b.ID, Rank: 2, Score: 0.90},
	}
	require.NoError(t, s.InsertGroupWithCursor(ctx, group, members, `{"next":1}`))

	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"next":1}`, got.PhaseCursor)

	n, err := s.CountGroups(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A member violating the FK rolls back the whole write, cursor
	// included.
	bad := &models.DupeGroup{ScanID: scan.ID, RepoID: repo.ID, Label: "broken"}
	err = s.InsertGroupWithCursor(ctx, bad, []models.DupeGroupMember{
		{PRID: a.ID, Rank: 1}, {PRID: 9999, Rank: 2},
	}, `{"next":2}`)
	require.Error(t, err)

	got, err = s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"next":1}`, got.PhaseCursor)
	n, err = s.CountGroups(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DeleteRepoCascades(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := s.CreateScan(ctx, repo.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpsertPR(ctx, testPR(repo.ID, 1, "")))

	require.NoError(t, s.DeleteRepo(ctx, repo.ID))

	_, err = s.GetRepo(ctx, repo.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetScan(ctx, scan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetPR(ctx, repo.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RepoByNameAndTouch(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	repo, err := s.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	got, err := s.GetRepoByName(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, got.ID)
	assert.Nil(t, got.LastScanAt)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchLastScan(ctx, repo.ID, at))
	got, err = s.GetRepoByName(ctx, "acme", "widgets")
	require.NoError(t, err)
	require.NotNil(t, got.LastScanAt)
	assert.True(t, got.LastScanAt.Equal(at))
}
