package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhruvparmar372/ossgard-sub002/internal/ai"
	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/internal/githost"
	"github.com/dhruvparmar372/ossgard-sub002/internal/notify"
	"github.com/dhruvparmar372/ossgard-sub002/internal/pipeline"
	"github.com/dhruvparmar372/ossgard-sub002/internal/profiles"
	"github.com/dhruvparmar372/ossgard-sub002/internal/queue"
	"github.com/dhruvparmar372/ossgard-sub002/internal/store"
	"github.com/dhruvparmar372/ossgard-sub002/internal/vector"
)

// runtime is everything a command needs to run the pipeline.
type runtime struct {
	cfg    *config.Config
	db     database.DB
	deps   *pipeline.Deps
	worker *queue.Worker
}

// bootstrap loads config, opens and migrates the database, and wires
// the pipeline dependencies. The caller owns rt.db and must Close it.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if profileName != "" {
		dir, err := profiles.Dir()
		if err != nil {
			return nil, err
		}
		p, err := profiles.Load(dir, profileName)
		if err != nil {
			return nil, err
		}
		cfg.Scan = p.Apply(cfg.Scan)
		slog.Info("scan profile applied", "profile", profileName)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	host, err := githost.NewGitHub(cfg.GitHub)
	if err != nil {
		db.Close()
		return nil, err
	}
	chat, err := ai.New(cfg.AI)
	if err != nil {
		db.Close()
		return nil, err
	}
	embedder, err := ai.NewEmbedder(cfg.AI)
	if err != nil {
		db.Close()
		return nil, err
	}
	vectors, err := vector.New(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := slog.Default()
	st := store.New(db)
	q := queue.New(db)

	deps := &pipeline.Deps{
		Store:              st,
		Queue:              q,
		Host:               host,
		Chat:               chat,
		Embedder:           embedder,
		Vectors:            vectors,
		Notify:             notify.New(cfg.Notify, logger),
		Config:             cfg.Scan,
		Logger:             logger,
		IntentSummaries:    cfg.AI.IntentSummaries,
		EmbedContextTokens: cfg.AI.EmbedContextTokens,
	}

	worker := queue.NewWorker(q, logger)
	worker.Count = cfg.Scan.Workers
	pipeline.Register(worker, deps)

	return &runtime{cfg: cfg, db: db, deps: deps, worker: worker}, nil
}
