// Package gateway is the long-running daemon: it runs the queue
// workers, the rescan cron scheduler, and the localhost REST control
// surface in one process.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
)

// Gateway combines the queue worker pool, the rescan scheduler, and
// the REST API server.
type Gateway struct {
	cfg       *config.Config
	db        database.DB
	store     *store.Store
	queue     *queue.Queue
	worker    *queue.Worker
	deps      *pipeline.Deps
	scheduler *Scheduler
	startedAt time.Time
}

// New creates a Gateway. Call Start to begin serving.
func New(cfg *config.Config, db database.DB, deps *pipeline.Deps, worker *queue.Worker) *Gateway {
	gw := &Gateway{
		cfg:       cfg,
		db:        db,
		store:     deps.Store,
		queue:     deps.Queue,
		worker:    worker,
		deps:      deps,
		startedAt: time.Now(),
	}
	gw.scheduler = newScheduler(db, deps)
	return gw
}

// Start runs workers, scheduler, and HTTP server until ctx is
// cancelled, then shuts all three down and returns.
func (gw *Gateway) Start(ctx context.Context) error {
	if err := gw.scheduler.Start(ctx); err != nil {
		return err
	}
	defer gw.scheduler.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gw.worker.Run(ctx)
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", gw.cfg.Gateway.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}

	wg.Wait()
	slog.Info("gateway stopped")
	return nil
}
