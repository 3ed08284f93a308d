package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhruvparmar372/ossgard-sub002/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ossgard daemon: workers, rescan schedules, and REST API",
	Long: `serve starts the long-running daemon. It runs the queue workers that
execute scan pipelines, fires rescan schedules on their cron
expressions, and exposes the localhost REST control surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.db.Close()

		gw := gateway.New(rt.cfg, rt.db, rt.deps, rt.worker)
		return gw.Start(ctx)
	},
}
