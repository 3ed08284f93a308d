package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// searchLimit bounds how many neighbours each PR pulls from the vector
// store. Duplicate sets bigger than this are vanishingly rare.
const searchLimit = 20

// processCluster groups open PRs into candidate duplicate sets using
// union-find over two signals: exact diff-hash matches and vector
// similarity above the configured thresholds. The phase is pure
// recomputation over stored state, so it has no mid-phase cursor; a
// retry simply runs it again.
func (d *Deps) processCluster(ctx context.Context, job *models.Job) (string, error) {
	var p scanPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.NonRetryable(fmt.Errorf("decoding cluster payload: %w", err))
	}

	scan, repo, run, err := d.beginPhase(ctx, p.ScanID, models.ScanStatusClustering)
	if err != nil || !run {
		return "", err
	}

	prs, err := d.Store.ListOpenPRs(ctx, repo.ID)
	if err != nil {
		return "", fmt.Errorf("listing open PRs: %w", err)
	}

	uf := newUnionFind()
	for i := range prs {
		uf.add(prs[i].Number)
	}

	// Exact path: identical normalised diffs are duplicates with no
	// model call needed, but they still go through verify so every
	// reported pair carries a confidence.
	byHash := make(map[string][]int)
	for i := range prs {
		if prs[i].DiffHash != "" {
			byHash[prs[i].DiffHash] = append(byHash[prs[i].DiffHash], prs[i].Number)
		}
	}
	for _, numbers := range byHash {
		for _, n := range numbers[1:] {
			uf.union(numbers[0], n)
		}
	}

	// Similarity path: each PR pulls its nearest neighbours from both
	// collections and unions with those above threshold.
	for i := range prs {
		if err := d.clusterPR(ctx, uf, repo.ID, prs[i].Number); err != nil {
			return "", err
		}
	}

	groups := uf.components()
	d.Logger.Info("cluster done", "scan", scan.ID, "candidate_groups", len(groups))

	if err := d.advance(ctx, models.JobTypeVerify, mustJSON(verifyPayload{ScanID: scan.ID, Groups: groups})); err != nil {
		return "", err
	}
	return mustJSON(map[string]int{"candidate_groups": len(groups)}), nil
}

func (d *Deps) clusterPR(ctx context.Context, uf *unionFind, repoID int64, number int) error {
	type pass struct {
		collection string
		threshold  float64
	}
	for _, p := range []pass{
		{vector.CollectionCode, d.Config.CodeSimilarityThreshold},
		{vector.CollectionIntent, d.Config.IntentSimilarityThreshold},
	} {
		point, err := d.Vectors.Get(ctx, p.collection, vector.PointKey(repoID, number, p.collection))
		if err != nil {
			return fmt.Errorf("loading %s vector for #%d: %w", p.collection, number, err)
		}
		if point == nil {
			// PR opened after the embed phase checkpoint; skip it.
			continue
		}
		matches, err := d.Vectors.Search(ctx, p.collection, repoID, point.Vector, searchLimit)
		if err != nil {
			return fmt.Errorf("searching %s vectors for #%d: %w", p.collection, number, err)
		}
		for _, m := range matches {
			if m.Payload.PRNumber == number {
				continue
			}
			if float64(m.Score) >= p.threshold {
				uf.union(number, m.Payload.PRNumber)
			}
		}
	}
	return nil
}
