// Package vector stores and searches PR embeddings. Two backends:
// Qdrant over its REST API for real deployments, and an in-memory
// implementation for tests and small scans.
package vector

import (
	"context"
	"fmt"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// Collection names. Code vectors embed the PR diff; intent vectors
// embed the title, body, and file list.
const (
	CollectionCode   = "code"
	CollectionIntent = "intent"
)

// Payload is the metadata stored with each point.
type Payload struct {
	RepoID   int64 `json:"repo_id"`
	PRNumber int   `json:"pr_number"`
}

// Point is one stored embedding.
type Point struct {
	Key     string
	Vector  []float32
	Payload Payload
}

// Match is one search hit.
type Match struct {
	Key     string
	Score   float32
	Payload Payload
}

// Store is the vector index the embed and cluster phases use.
type Store interface {
	// EnsureCollection creates the collection if missing. Idempotent.
	EnsureCollection(ctx context.Context, collection string, dims int) error
	// Upsert writes points, overwriting any existing point with the
	// same key.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns up to limit points most similar to vector,
	// restricted to the given repo, ordered by descending score.
	Search(ctx context.Context, collection string, repoID int64, vector []float32, limit int) ([]Match, error)
	// Get returns the stored point for key, or nil when absent.
	Get(ctx context.Context, collection string, key string) (*Point, error)
	// DeleteRepo removes every point belonging to repoID.
	DeleteRepo(ctx context.Context, collection string, repoID int64) error
}

// PointKey builds the canonical key for a PR's embedding in a
// collection kind ("code" or "intent").
func PointKey(repoID int64, prNumber int, kind string) string {
	return fmt.Sprintf("%d-%d-%s", repoID, prNumber, kind)
}

// New returns the configured Store.
func New(cfg config.VectorConfig) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemory(), nil
	case "qdrant":
		return NewQdrant(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector provider %q (supported: qdrant, memory)", cfg.Provider)
	}
}
