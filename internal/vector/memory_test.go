package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memPoint(repoID int64, pr int, vec []float32) Point {
	return Point{
		Key:     PointKey(repoID, pr, CollectionCode),
		Vector:  vec,
		Payload: Payload{RepoID: repoID, PRNumber: pr},
	}
}

func TestMemory_SearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, CollectionCode, []Point{
		memPoint(1, 10, []float32{1, 0, 0}),
		memPoint(1, 11, []float32{0.9, 0.1, 0}),
		memPoint(1, 12, []float32{0, 1, 0}),
	}))

	matches, err := m.Search(ctx, CollectionCode, 1, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, 10, matches[0].Payload.PRNumber)
	assert.Equal(t, 11, matches[1].Payload.PRNumber)
	assert.Equal(t, 12, matches[2].Payload.PRNumber)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestMemory_SearchFiltersByRepo(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, CollectionCode, []Point{
		memPoint(1, 10, []float32{1, 0}),
		memPoint(2, 10, []float32{1, 0}),
	}))

	matches, err := m.Search(ctx, CollectionCode, 1, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].Payload.RepoID)
}

func TestMemory_SearchRespectsLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var points []Point
	for pr := 1; pr <= 5; pr++ {
		points = append(points, memPoint(1, pr, []float32{1, float32(pr)}))
	}
	require.NoError(t, m.Upsert(ctx, CollectionCode, points))

	matches, err := m.Search(ctx, CollectionCode, 1, []float32{1, 1}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemory_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, CollectionIntent, []Point{memPoint(1, 10, []float32{1, 0})}))
	require.NoError(t, m.Upsert(ctx, CollectionIntent, []Point{memPoint(1, 10, []float32{0, 1})}))

	p, err := m.Get(ctx, CollectionIntent, PointKey(1, 10, CollectionCode))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []float32{0, 1}, p.Vector)
}

func TestMemory_GetMissingReturnsNil(t *testing.T) {
	m := NewMemory()
	p, err := m.Get(context.Background(), CollectionCode, "1-99-code")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemory_DeleteRepo(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, CollectionCode, []Point{
		memPoint(1, 10, []float32{1, 0}),
		memPoint(2, 20, []float32{0, 1}),
	}))

	require.NoError(t, m.DeleteRepo(ctx, CollectionCode, 1))

	matches, err := m.Search(ctx, CollectionCode, 1, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.Search(ctx, CollectionCode, 2, []float32{0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosine([]float32{1}, []float32{1, 2}), "mismatched dims")
	assert.Equal(t, float32(0), cosine(nil, nil))
}

func TestPointKey(t *testing.T) {
	assert.Equal(t, "7-42-code", PointKey(7, 42, CollectionCode))
	assert.Equal(t, "7-42-intent", PointKey(7, 42, CollectionIntent))
}
