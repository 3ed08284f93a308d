package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan owner/name",
	Short: "Run a one-shot duplicate scan of a repository",
	Long: `scan runs the full pipeline against one repository and waits for it
to finish, printing the duplicate groups found. The repository is
tracked automatically if it is not already.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, err := splitRepoArg(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.db.Close()

		repo, err := rt.deps.Store.GetRepoByName(ctx, owner, name)
		if errors.Is(err, store.ErrNotFound) {
			repo, err = rt.deps.Store.CreateRepo(ctx, owner, name)
		}
		if err != nil {
			return err
		}

		scan, err := pipeline.StartScan(ctx, rt.deps, repo.ID)
		if errors.Is(err, store.ErrActiveScan) {
			return fmt.Errorf("%s already has an active scan", repo.FullName())
		}
		if err != nil {
			return err
		}
		fmt.Printf("Scanning %s (scan %d)...\n", repo.FullName(), scan.ID)

		// Workers stop once the scan reaches a terminal status.
		workerCtx, cancelWorkers := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			rt.worker.Run(workerCtx)
			close(done)
		}()

		final, err := waitForScan(ctx, rt, scan.ID)
		cancelWorkers()
		<-done
		if err != nil {
			return err
		}

		return printScanResult(ctx, rt, repo, final)
	},
}

func splitRepoArg(arg string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(arg), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/name, got %q", arg)
	}
	return parts[0], parts[1], nil
}

func waitForScan(ctx context.Context, rt *runtime, scanID int64) (*models.Scan, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		scan, err := rt.deps.Store.GetScan(ctx, scanID)
		if err != nil {
			return nil, err
		}
		if scan.Status != last {
			fmt.Printf("  %s\n", scan.Status)
			last = scan.Status
		}
		if !scan.Active() {
			return scan, nil
		}
	}
}

func printScanResult(ctx context.Context, rt *runtime, repo *models.Repo, scan *models.Scan) error {
	if scan.Status == models.ScanStatusFailed {
		return fmt.Errorf("scan failed: %s", scan.Error)
	}

	fmt.Printf("\nScanned %d open PRs, found %d duplicate group(s).\n", scan.PRCount, scan.DupeGroupCount)
	if scan.DupeGroupCount == 0 {
		return nil
	}

	groups, err := rt.deps.Store.ListGroups(ctx, scan.ID)
	if err != nil {
		return err
	}
	members, err := rt.deps.Store.ListGroupMembers(ctx, scan.ID)
	if err != nil {
		return err
	}
	byGroup := make(map[int64][]models.GroupMemberDetail)
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m)
	}

	for _, g := range groups {
		label := g.Label
		if label == "" {
			label = fmt.Sprintf("group %d", g.ID)
		}
		fmt.Printf("\n%s (%d PRs):\n", label, g.PRCount)
		for _, m := range byGroup[g.ID] {
			fmt.Printf("  %d. #%d %s (@%s, score %.2f)\n", m.Rank, m.PRNumber, m.PRTitle, m.PRAuthor, m.Score)
			if m.Rationale != "" {
				fmt.Printf("     %s\n", m.Rationale)
			}
		}
	}
	return nil
}
