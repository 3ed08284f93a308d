package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// buildHandler wires all REST routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	// Health / status
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Repos
	mux.HandleFunc("POST /api/repos", gw.handleCreateRepo)
	mux.HandleFunc("GET /api/repos", gw.handleListRepos)
	mux.HandleFunc("GET /api/repos/{id}", gw.handleGetRepo)
	mux.HandleFunc("DELETE /api/repos/{id}", gw.handleDeleteRepo)
	mux.HandleFunc("GET /api/repos/{id}/scans", gw.handleListScans)

	// Scans
	mux.HandleFunc("POST /api/scans", gw.handleCreateScan)
	mux.HandleFunc("GET /api/scans/{id}", gw.handleGetScan)
	mux.HandleFunc("GET /api/scans/{id}/groups", gw.handleListScanGroups)
	mux.HandleFunc("POST /api/scans/{id}/pause", gw.handlePauseScan)
	mux.HandleFunc("POST /api/scans/{id}/resume", gw.handleResumeScan)

	// Job queue visibility
	mux.HandleFunc("GET /api/jobs", gw.handleListJobs)

	// Rescan schedules
	mux.HandleFunc("GET /api/schedules", gw.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", gw.handleCreateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", gw.handleDeleteSchedule)

	return mux
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := gw.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	repos, err := gw.store.ListRepos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "running",
		StartedAt: gw.startedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Repos:     len(repos),
		Workers:   gw.worker.Count,
	})
}

func (gw *Gateway) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req createRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Owner = strings.TrimSpace(req.Owner)
	req.Name = strings.TrimSpace(req.Name)
	if req.Owner == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner and name are required")
		return
	}

	if existing, err := gw.store.GetRepoByName(r.Context(), req.Owner, req.Name); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	repo, err := gw.store.CreateRepo(r.Context(), req.Owner, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (gw *Gateway) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := gw.store.ListRepos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (gw *Gateway) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, err := gw.store.GetRepo(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (gw *Gateway) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.DeleteRepo(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Vectors are best-effort cleanup; rows are already gone.
	for _, coll := range []string{vector.CollectionCode, vector.CollectionIntent} {
		if err := gw.deps.Vectors.DeleteRepo(r.Context(), coll, id); err != nil {
			gw.deps.Logger.Warn("deleting repo vectors failed", "repo", id, "collection", coll, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (gw *Gateway) handleListScans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scans, err := gw.store.ListScans(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (gw *Gateway) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RepoID <= 0 {
		writeError(w, http.StatusBadRequest, "repo_id is required")
		return
	}
	if _, err := gw.store.GetRepo(r.Context(), req.RepoID); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	scan, err := pipeline.StartScan(r.Context(), gw.deps, req.RepoID)
	if errors.Is(err, store.ErrActiveScan) {
		writeError(w, http.StatusConflict, "repo already has an active scan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, scan)
}

func (gw *Gateway) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scan, err := gw.store.GetScan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// groupView is one dupe group with its rank-ordered members inlined.
type groupView struct {
	models.DupeGroup
	Members []models.GroupMemberDetail `json:"members"`
}

func (gw *Gateway) handleListScanGroups(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := gw.store.GetScan(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	groups, err := gw.store.ListGroups(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	members, err := gw.store.ListGroupMembers(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byGroup := make(map[int64][]models.GroupMemberDetail)
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m)
	}
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{DupeGroup: g, Members: byGroup[g.ID]})
	}
	writeJSON(w, http.StatusOK, views)
}

func (gw *Gateway) handlePauseScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scan, err := gw.store.GetScan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !scan.Active() {
		writeError(w, http.StatusConflict, "scan already finished")
		return
	}
	if err := gw.store.PauseScan(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (gw *Gateway) handleResumeScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scan, err := gw.store.GetScan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scan.Status != models.ScanStatusPaused {
		writeError(w, http.StatusConflict, "scan is not paused")
		return
	}
	if err := pipeline.ResumeScan(r.Context(), gw.deps, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (gw *Gateway) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := gw.queue.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (gw *Gateway) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := gw.scheduler.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (gw *Gateway) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RepoID <= 0 || strings.TrimSpace(req.Expr) == "" {
		writeError(w, http.StatusBadRequest, "repo_id and expr are required")
		return
	}
	if _, err := gw.store.GetRepo(r.Context(), req.RepoID); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	id, err := gw.scheduler.Add(r.Context(), Schedule{
		RepoID:  req.RepoID,
		Expr:    strings.TrimSpace(req.Expr),
		Profile: strings.TrimSpace(req.Profile),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (gw *Gateway) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.scheduler.Remove(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
