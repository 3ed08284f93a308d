package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

func testGateway(t *testing.T) (*Gateway, http.Handler) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "gateway.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db)
	q := queue.New(db)
	deps := &pipeline.Deps{
		Store:   st,
		Queue:   q,
		Vectors: vector.NewMemory(),
		Config:  config.ScanConfig{MaxRetries: 3},
		Logger:  logger,
	}
	worker := queue.NewWorker(q, logger)
	gw := New(&config.Config{}, db, deps, worker)
	return gw, buildHandler(gw)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestAPI_Health(t *testing.T) {
	_, h := testGateway(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_CreateRepo(t *testing.T) {
	_, h := testGateway(t)

	rec := doJSON(t, h, http.MethodPost, "/api/repos", `{"owner":"acme","name":"widgets"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var repo models.Repo
	decodeBody(t, rec, &repo)
	assert.Equal(t, "acme", repo.Owner)
	assert.NotZero(t, repo.ID)

	// Creating the same repo again returns the existing row.
	rec = doJSON(t, h, http.MethodPost, "/api/repos", `{"owner":"acme","name":"widgets"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again models.Repo
	decodeBody(t, rec, &again)
	assert.Equal(t, repo.ID, again.ID)
}

func TestAPI_CreateRepoValidation(t *testing.T) {
	_, h := testGateway(t)

	rec := doJSON(t, h, http.MethodPost, "/api/repos", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/repos", `{"owner":"  ","name":"widgets"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetRepoNotFound(t *testing.T) {
	_, h := testGateway(t)
	rec := doJSON(t, h, http.MethodGet, "/api/repos/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/repos/banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateScan(t *testing.T) {
	gw, h := testGateway(t)
	ctx := context.Background()
	repo, err := gw.store.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/api/scans", `{"repo_id":`+jsonInt(repo.ID)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var scan models.Scan
	decodeBody(t, rec, &scan)
	assert.Equal(t, models.ScanStatusQueued, scan.Status)

	// One active scan per repo.
	rec = doJSON(t, h, http.MethodPost, "/api/scans", `{"repo_id":`+jsonInt(repo.ID)+`}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The entry job is queued for the workers.
	jobs, err := gw.queue.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobTypeScan, jobs[0].Type)
}

func TestAPI_CreateScanMissingRepo(t *testing.T) {
	_, h := testGateway(t)
	rec := doJSON(t, h, http.MethodPost, "/api/scans", `{"repo_id":42}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PauseAndResume(t *testing.T) {
	gw, h := testGateway(t)
	ctx := context.Background()
	repo, err := gw.store.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := gw.store.CreateScan(ctx, repo.ID)
	require.NoError(t, err)
	id := jsonInt(scan.ID)

	// Resume before pause is a conflict.
	rec := doJSON(t, h, http.MethodPost, "/api/scans/"+id+"/resume", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/scans/"+id+"/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := gw.store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPaused, got.Status)

	rec = doJSON(t, h, http.MethodPost, "/api/scans/"+id+"/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err = gw.store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusQueued, got.Status)

	// A finished scan cannot be paused.
	require.NoError(t, gw.store.CompleteScan(ctx, scan.ID, 0))
	rec = doJSON(t, h, http.MethodPost, "/api/scans/"+id+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_ListScanGroups(t *testing.T) {
	gw, h := testGateway(t)
	ctx := context.Background()
	repo, err := gw.store.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	scan, err := gw.store.CreateScan(ctx, repo.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, n := range []int{10, 11} {
		require.NoError(t, gw.store.UpsertPR(ctx, &models.PullRequest{
			RepoID: repo.ID, Number: n, Title: "same fix", State: models.PRStateOpen,
			FilePaths: "[]", UpdatedAt: now, CreatedAt: now,
		}))
	}
	a, err := gw.store.GetPR(ctx, repo.ID, 10)
	require.NoError(t, err)
	b, err := gw.store.GetPR(ctx, repo.ID, 11)
	require.NoError(t, err)
	require.NoError(t, gw.store.InsertGroup(ctx,
		&models.DupeGroup{ScanID: scan.ID, RepoID: repo.ID, Label: "same fix"},
		[]models.DupeGroupMember{
			{PRID: a.ID, Rank: 1, Score: 0.9},
			{PRID: b.ID, Rank: 2, Score: 0.8},
		}))

	rec := doJSON(t, h, http.MethodGet, "/api/scans/"+jsonInt(scan.ID)+"/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []groupView
	decodeBody(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "same fix", views[0].Label)
	require.Len(t, views[0].Members, 2)
	assert.Equal(t, 10, views[0].Members[0].PRNumber)
	assert.Equal(t, 1, views[0].Members[0].Rank)
}

func TestAPI_Schedules(t *testing.T) {
	gw, h := testGateway(t)
	ctx := context.Background()
	repo, err := gw.store.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)
	id := jsonInt(repo.ID)

	rec := doJSON(t, h, http.MethodPost, "/api/schedules", `{"repo_id":`+id+`,"expr":"not a cron expr"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/schedules", `{"repo_id":`+id+`,"expr":"@daily","profile":"thorough"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/schedules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var schedules []Schedule
	decodeBody(t, rec, &schedules)
	require.Len(t, schedules, 1)
	assert.Equal(t, "@daily", schedules[0].Expr)
	assert.True(t, schedules[0].Enabled)

	rec = doJSON(t, h, http.MethodDelete, "/api/schedules/"+jsonInt(schedules[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	list, err := gw.scheduler.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAPI_DeleteRepo(t *testing.T) {
	gw, h := testGateway(t)
	ctx := context.Background()
	repo, err := gw.store.CreateRepo(ctx, "acme", "widgets")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodDelete, "/api/repos/"+jsonInt(repo.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = gw.store.GetRepo(ctx, repo.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func jsonInt(id int64) string {
	return strconv.FormatInt(id, 10)
}
