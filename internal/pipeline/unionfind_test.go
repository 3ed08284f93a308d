package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFind_Components(t *testing.T) {
	uf := newUnionFind()
	for _, n := range []int{1, 2, 3, 4, 5, 6} {
		uf.add(n)
	}
	uf.union(1, 2)
	uf.union(2, 3)
	uf.union(5, 6)

	groups := uf.components()
	assert.Equal(t, [][]int{{1, 2, 3}, {5, 6}}, groups)
}

func TestUnionFind_SingletonsExcluded(t *testing.T) {
	uf := newUnionFind()
	uf.add(10)
	uf.add(20)
	assert.Empty(t, uf.components())
}

func TestUnionFind_UnionIsIdempotent(t *testing.T) {
	uf := newUnionFind()
	uf.union(1, 2)
	uf.union(2, 1)
	uf.union(1, 2)

	groups := uf.components()
	assert.Equal(t, [][]int{{1, 2}}, groups)
}

func TestUnionFind_DeterministicOrder(t *testing.T) {
	uf := newUnionFind()
	uf.union(9, 7)
	uf.union(3, 1)

	groups := uf.components()
	assert.Equal(t, [][]int{{1, 3}, {7, 9}}, groups)
}
