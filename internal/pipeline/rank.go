package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// rankDiffBudget caps the diff tokens per PR in a ranking prompt.
const rankDiffBudget = 1500

// rankCursor is the rank phase's resume point: the next confirmed
// group to rank. Groups before it are already inserted.
type rankCursor struct {
	Next int `json:"next"`
}

// processRank orders each confirmed group by merge preference with one
// model call per group, persists the groups, and completes the scan.
func (d *Deps) processRank(ctx context.Context, job *models.Job) (string, error) {
	var p rankPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding rank payload: %w", err))
	}

	scan, repo, run, err := d.beginPhase(ctx, p.ScanID, models.ScanStatusRanking)
	if err != nil || !run {
		return "", err
	}

	cursor := rankCursor{}
	if scan.PhaseCursor != "" {
		if err := json.Unmarshal([]byte(scan.PhaseCursor), &cursor); err != nil {
			d.Logger.Warn("unreadable rank cursor, restarting phase", "scan", scan.ID, "error", err)
			cursor = rankCursor{}
		}
	}

	log := d.Logger.With("scan", scan.ID, "repo", repo.FullName())
	log.Info("rank starting", "confirmed_groups", len(p.Groups), "at", cursor.Next)

	for gi := cursor.Next; gi < len(p.Groups); gi++ {
		next := mustJSON(rankCursor{Next: gi + 1})
		if err := d.rankGroup(ctx, scan, repo, p.Groups[gi], next); err != nil {
			return "", err
		}
		if stop, err := d.paused(ctx, scan.ID); err != nil || stop {
			return "", err
		}
	}

	groupCount, err := d.Store.CountGroups(ctx, scan.ID)
	if err != nil {
		return "", fmt.Errorf("counting groups: %w", err)
	}
	if err := d.Store.CompleteScan(ctx, scan.ID, groupCount); err != nil {
		return "", fmt.Errorf("completing scan: %w", err)
	}
	if err := d.Store.TouchLastScan(ctx, repo.ID, time.Now().UTC()); err != nil {
		d.Logger.Warn("recording last scan time failed", "repo", repo.ID, "error", err)
	}

	log.Info("scan done", "dupe_groups", groupCount)
	if d.Notify != nil {
		if done, err := d.Store.GetScan(ctx, scan.ID); err == nil {
			d.Notify.ScanCompleted(ctx, repo, done)
		}
	}
	return mustJSON(map[string]int{"dupe_groups": groupCount}), nil
}

// rankGroup ranks one confirmed group and writes it, its members, and
// the advanced cursor in one transaction, so a crash between insert and
// cursor save cannot replay the group on redelivery.
func (d *Deps) rankGroup(ctx context.Context, scan *models.Scan, repo *models.Repo, cg confirmedGroup, nextCursor string) error {
	var prs []*models.PullRequest
	for _, n := range cg.Numbers {
		pr, err := d.Store.GetPR(ctx, repo.ID, n)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if pr.State == models.PRStateOpen {
			prs = append(prs, pr)
		}
	}
	if len(prs) < 2 {
		return d.Store.SetPhaseCursor(ctx, scan.ID, nextCursor)
	}

	label, members, err := d.rankMembers(ctx, prs, cg)
	if err != nil {
		return err
	}

	group := models.DupeGroup{
		ScanID: scan.ID,
		RepoID: repo.ID,
		Label:  label,
	}
	return d.Store.InsertGroupWithCursor(ctx, &group, members, nextCursor)
}

// rankMembers produces the rank-ordered member rows for one group. A
// transport failure propagates so the queue retries the job. An
// unparseable reply gets one fresh model call; a reply that still
// cannot be read, or that does not cover every PR exactly once, falls
// back to ordering by age so a flaky model never loses a confirmed
// group.
func (d *Deps) rankMembers(ctx context.Context, prs []*models.PullRequest, cg confirmedGroup) (string, []models.DupeGroupMember, error) {
	var parsed rankResponse
	parsedOK := false
	for attempt := 1; attempt <= 2 && !parsedOK; attempt++ {
		resp, err := d.Chat.Chat(ctx, rankSystemPrompt, rankUserPrompt(prs, rankDiffBudget), 1024)
		if err != nil {
			return "", nil, fmt.Errorf("rank call: %w", err)
		}
		if err := parseModelJSON(resp.Text, &parsed); err != nil {
			d.Logger.Warn("unparseable rank response", "attempt", attempt, "error", err)
			continue
		}
		parsedOK = true
	}
	if !parsedOK {
		return "", fallbackMembers(prs, cg), nil
	}

	byNumber := make(map[int]*models.PullRequest, len(prs))
	for _, pr := range prs {
		byNumber[pr.Number] = pr
	}

	// The ranking is valid only when it covers every PR exactly once.
	// The order comes from the scores, highest first; the model's own
	// rank numbering is advisory and routinely inconsistent.
	type scored struct {
		pr        *models.PullRequest
		score     float64
		rationale string
	}
	seenPR := make(map[int]bool)
	ranked := make([]scored, 0, len(prs))
	for _, r := range parsed.Ranking {
		pr, ok := byNumber[r.Number]
		if !ok || seenPR[r.Number] {
			d.Logger.Warn("invalid rank ordering, using fallback order", "number", r.Number)
			return parsed.Label, fallbackMembers(prs, cg), nil
		}
		seenPR[r.Number] = true
		ranked = append(ranked, scored{pr: pr, score: r.Score, rationale: r.Rationale})
	}
	if len(ranked) != len(prs) {
		d.Logger.Warn("rank ordering incomplete, using fallback order",
			"ranked", len(ranked), "expected", len(prs))
		return parsed.Label, fallbackMembers(prs, cg), nil
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].pr.CreatedAt.Equal(ranked[j].pr.CreatedAt) {
			return ranked[i].pr.CreatedAt.Before(ranked[j].pr.CreatedAt)
		}
		return ranked[i].pr.Number < ranked[j].pr.Number
	})
	members := make([]models.DupeGroupMember, 0, len(ranked))
	for i, r := range ranked {
		members = append(members, models.DupeGroupMember{
			PRID:      r.pr.ID,
			Rank:      i + 1,
			Score:     r.score,
			Rationale: r.rationale,
		})
	}
	return parsed.Label, members, nil
}

// fallbackMembers orders by PR creation time, oldest first, carrying
// the group's verify confidence as every member's score.
func fallbackMembers(prs []*models.PullRequest, cg confirmedGroup) []models.DupeGroupMember {
	ordered := make([]*models.PullRequest, len(prs))
	copy(ordered, prs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].Number < ordered[j].Number
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	members := make([]models.DupeGroupMember, 0, len(ordered))
	for i, pr := range ordered {
		members = append(members, models.DupeGroupMember{
			PRID:      pr.ID,
			Rank:      i + 1,
			Score:     cg.Confidence,
			Rationale: "ordered by age; ranking model unavailable",
		})
	}
	return members
}
