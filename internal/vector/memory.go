package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store using brute-force cosine similarity.
// Fine for tests and repos with a few hundred open PRs.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Point)}
}

func (m *Memory) EnsureCollection(ctx context.Context, collection string, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]Point)
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		m.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.Key] = p
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, collection string, repoID int64, vector []float32, limit int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []Match
	for _, p := range m.collections[collection] {
		if p.Payload.RepoID != repoID {
			continue
		}
		matches = append(matches, Match{
			Key:     p.Key,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *Memory) Get(ctx context.Context, collection string, key string) (*Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.collections[collection][key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) DeleteRepo(ctx context.Context, collection string, repoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.collections[collection] {
		if p.Payload.RepoID == repoID {
			delete(m.collections[collection], key)
		}
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
