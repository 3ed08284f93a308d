package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage tracked repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add owner/name",
	Short: "Track a repository for scanning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, err := splitRepoArg(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.db.Close()

		if existing, err := rt.deps.Store.GetRepoByName(ctx, owner, name); err == nil {
			fmt.Printf("%s is already tracked (id %d)\n", existing.FullName(), existing.ID)
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		repo, err := rt.deps.Store.CreateRepo(ctx, owner, name)
		if err != nil {
			return err
		}
		fmt.Printf("Tracking %s (id %d)\n", repo.FullName(), repo.ID)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.db.Close()

		repos, err := rt.deps.Store.ListRepos(ctx)
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories tracked. Add one with: ossgard repo add owner/name")
			return nil
		}
		for _, r := range repos {
			lastScan := "never"
			if r.LastScanAt != nil {
				lastScan = r.LastScanAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%4d  %-40s last scan: %s\n", r.ID, r.FullName(), lastScan)
		}
		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove owner/name",
	Short: "Stop tracking a repository and delete its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, err := splitRepoArg(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.db.Close()

		repo, err := rt.deps.Store.GetRepoByName(ctx, owner, name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s/%s is not tracked", owner, name)
		}
		if err != nil {
			return err
		}
		if err := rt.deps.Store.DeleteRepo(ctx, repo.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", repo.FullName())
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoRemoveCmd)
}
