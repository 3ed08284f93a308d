package githost

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// GitHub implements Host for GitHub and GitHub Enterprise. All calls
// go through the rate gate so concurrent ingest stays inside the
// configured API budget.
type GitHub struct {
	client *gogithub.Client
	gate   *Gate
}

// NewGitHub creates a GitHub host from the given configuration.
func NewGitHub(cfg config.GitHubConfig) (*GitHub, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := gogithub.NewClient(tc)

	// Support GitHub Enterprise by overriding the base URL.
	if cfg.Host != "" && cfg.Host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", cfg.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", cfg.Host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}

	return &GitHub{client: client, gate: NewGate(cfg.MaxConcurrent)}, nil
}

func (g *GitHub) ListOpenPRs(ctx context.Context, owner, repo string, page int) ([]PR, error) {
	if page < 1 {
		page = 1
	}
	var ghPRs []*gogithub.PullRequest
	err := g.gate.Do(ctx, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		ghPRs, resp, err = g.client.PullRequests.List(ctx, owner, repo, &gogithub.PullRequestListOptions{
			State:       "open",
			Sort:        "created",
			Direction:   "asc",
			ListOptions: gogithub.ListOptions{PerPage: PerPage, Page: page},
		})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing open PRs for %s/%s page %d: %w", owner, repo, page, err)
	}

	prs := make([]PR, 0, len(ghPRs))
	for _, pr := range ghPRs {
		if pr == nil {
			continue
		}
		prs = append(prs, PR{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			Body:      pr.GetBody(),
			Author:    pr.GetUser().GetLogin(),
			State:     pr.GetState(),
			UpdatedAt: pr.GetUpdatedAt().Time,
			CreatedAt: pr.GetCreatedAt().Time,
		})
	}
	return prs, nil
}

func (g *GitHub) ListPRFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error) {
	var files []ChangedFile
	for page := 1; ; page++ {
		var ghFiles []*gogithub.CommitFile
		err := g.gate.Do(ctx, func() (*gogithub.Response, error) {
			var resp *gogithub.Response
			var err error
			ghFiles, resp, err = g.client.PullRequests.ListFiles(ctx, owner, repo, number,
				&gogithub.ListOptions{PerPage: PerPage, Page: page})
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing files for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, f := range ghFiles {
			if f == nil {
				continue
			}
			files = append(files, ChangedFile{
				Path:      f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}
		if len(ghFiles) < PerPage {
			return files, nil
		}
	}
}

func (g *GitHub) GetPRDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	var diff string
	err := g.gate.Do(ctx, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		diff, resp, err = g.client.PullRequests.GetRaw(ctx, owner, repo, number,
			gogithub.RawOptions{Type: gogithub.Diff})
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("fetching diff for %s/%s#%d: %w", owner, repo, number, err)
	}
	return diff, nil
}
