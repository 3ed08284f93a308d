package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// verifyDiffBudget caps the diff tokens per PR in a pairwise prompt.
const verifyDiffBudget = 2000

// verifyCursor is the verify phase's resume point: the next candidate
// group to process and the groups confirmed so far.
type verifyCursor struct {
	Next      int              `json:"next"`
	Confirmed []confirmedGroup `json:"confirmed"`
}

// pairVerdict is one pairwise comparison result.
type pairVerdict struct {
	a, b int
	v    verdict
}

// processVerify runs pairwise duplicate checks over each candidate
// group from cluster, then carves the confirmed pairs into cliques so
// only PRs that are mutually duplicates end up grouped together. The
// cursor advances per candidate group.
func (d *Deps) processVerify(ctx context.Context, job *models.Job) (string, error) {
	var p verifyPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding verify payload: %w", err))
	}

	scan, repo, run, err := d.beginPhase(ctx, p.ScanID, models.ScanStatusVerifying)
	if err != nil || !run {
		return "", err
	}

	cursor := verifyCursor{}
	if scan.PhaseCursor != "" {
		if err := json.Unmarshal([]byte(scan.PhaseCursor), &cursor); err != nil {
			d.Logger.Warn("unreadable verify cursor, restarting phase", "scan", scan.ID, "error", err)
			cursor = verifyCursor{}
		}
	}

	log := d.Logger.With("scan", scan.ID, "repo", repo.FullName())
	log.Info("verify starting", "candidate_groups", len(p.Groups), "at", cursor.Next)

	for gi := cursor.Next; gi < len(p.Groups); gi++ {
		confirmed, err := d.verifyGroup(ctx, repo.ID, p.Groups[gi])
		if err != nil {
			return "", err
		}
		cursor.Confirmed = append(cursor.Confirmed, confirmed...)
		cursor.Next = gi + 1
		if err := d.Store.SetPhaseCursor(ctx, scan.ID, mustJSON(cursor)); err != nil {
			return "", fmt.Errorf("saving verify cursor: %w", err)
		}
		if stop, err := d.paused(ctx, scan.ID); err != nil || stop {
			return "", err
		}
	}

	log.Info("verify done", "confirmed_groups", len(cursor.Confirmed))
	if err := d.advance(ctx, models.JobTypeRank, mustJSON(rankPayload{ScanID: scan.ID, Groups: cursor.Confirmed})); err != nil {
		return "", err
	}
	return mustJSON(map[string]int{"confirmed_groups": len(cursor.Confirmed)}), nil
}

// verifyGroup compares every pair in one candidate group with the
// model and returns the confirmed cliques. Identical diffs are not
// short-circuited; every reported pair carries a model verdict.
func (d *Deps) verifyGroup(ctx context.Context, repoID int64, numbers []int) ([]confirmedGroup, error) {
	prs := make(map[int]*models.PullRequest, len(numbers))
	var members []int
	for _, n := range numbers {
		pr, err := d.Store.GetPR(ctx, repoID, n)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if pr.State != models.PRStateOpen {
			continue
		}
		prs[n] = pr
		members = append(members, n)
	}
	if len(members) < 2 {
		return nil, nil
	}

	type pairJob struct{ a, b int }
	var toCheck []pairJob
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			toCheck = append(toCheck, pairJob{members[i], members[j]})
		}
	}

	// Pairwise model calls run concurrently up to the configured limit.
	concurrency := d.Config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make([]pairVerdict, len(toCheck))
	errs := make([]error, len(toCheck))
	var wg sync.WaitGroup
	for i, pj := range toCheck {
		wg.Add(1)
		go func(i int, pj pairJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := d.verifyPair(ctx, prs[pj.a], prs[pj.b])
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = pairVerdict{pj.a, pj.b, v}
		}(i, pj)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return greedyCliques(results), nil
}

// verifyPair asks the model whether two PRs duplicate each other. An
// unparseable reply is retried once with the same prompt, then treated
// as a hard failure rather than a silent false negative.
func (d *Deps) verifyPair(ctx context.Context, a, b *models.PullRequest) (verdict, error) {
	prompt := verifyUserPrompt(a, b, verifyDiffBudget)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := d.Chat.Chat(ctx, verifySystemPrompt, prompt, 512)
		if err != nil {
			return verdict{}, fmt.Errorf("verifying #%d vs #%d: %w", a.Number, b.Number, err)
		}
		var v verdict
		if err := parseModelJSON(resp.Text, &v); err != nil {
			lastErr = err
			d.Logger.Warn("unparseable verify verdict, retrying",
				"pr_a", a.Number, "pr_b", b.Number, "error", err)
			continue
		}
		if v.Confidence < 0 {
			v.Confidence = 0
		}
		if v.Confidence > 1 {
			v.Confidence = 1
		}
		return v, nil
	}
	return verdict{}, queue.NonRetryable(
		fmt.Errorf("verify verdict for #%d vs #%d unparseable after retry: %w", a.Number, b.Number, lastErr))
}

// greedyCliques builds confirmed groups from duplicate pairs: pairs
// are taken in descending confidence order, and a PR joins a group
// only when it has a confirmed pair with every current member. No
// transitive closure: A~B and B~C alone never put A and C together.
func greedyCliques(pairs []pairVerdict) []confirmedGroup {
	type key struct{ a, b int }
	norm := func(a, b int) key {
		if a > b {
			a, b = b, a
		}
		return key{a, b}
	}

	dup := make(map[key]verdict)
	var confirmed []pairVerdict
	for _, p := range pairs {
		if !p.v.IsDuplicate {
			continue
		}
		dup[norm(p.a, p.b)] = p.v
		confirmed = append(confirmed, p)
	}
	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].v.Confidence > confirmed[j].v.Confidence
	})

	assigned := make(map[int]int) // PR number -> group index
	var groups [][]int
	var seeds []verdict

	connectedToAll := func(n int, group []int) bool {
		for _, m := range group {
			if _, ok := dup[norm(n, m)]; !ok {
				return false
			}
		}
		return true
	}

	for _, p := range confirmed {
		gi, aOK := assigned[p.a]
		gj, bOK := assigned[p.b]
		switch {
		case !aOK && !bOK:
			groups = append(groups, []int{p.a, p.b})
			seeds = append(seeds, p.v)
			assigned[p.a] = len(groups) - 1
			assigned[p.b] = len(groups) - 1
		case aOK && !bOK:
			if connectedToAll(p.b, groups[gi]) {
				groups[gi] = append(groups[gi], p.b)
				assigned[p.b] = gi
			}
		case !aOK && bOK:
			if connectedToAll(p.a, groups[gj]) {
				groups[gj] = append(groups[gj], p.a)
				assigned[p.a] = gj
			}
		}
	}

	out := make([]confirmedGroup, 0, len(groups))
	for gi, g := range groups {
		sort.Ints(g)
		var sum float64
		var n int
		for i := 0; i < len(g); i++ {
			for j := i + 1; j < len(g); j++ {
				if v, ok := dup[norm(g[i], g[j])]; ok {
					sum += v.Confidence
					n++
				}
			}
		}
		conf := 0.0
		if n > 0 {
			conf = sum / float64(n)
		}
		out = append(out, confirmedGroup{
			Numbers:      g,
			Confidence:   conf,
			Relationship: seeds[gi].Relationship,
		})
	}
	return out
}
