package pipeline

import "sort"

// unionFind is a disjoint-set forest over PR numbers with path
// compression and union by size.
type unionFind struct {
	parent map[int]int
	size   map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int), size: make(map[int]int)}
}

func (u *unionFind) add(x int) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
	}
}

func (u *unionFind) find(x int) int {
	u.add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// components returns every set with at least two members, each sorted
// ascending, ordered by their smallest member.
func (u *unionFind) components() [][]int {
	bySet := make(map[int][]int)
	for x := range u.parent {
		root := u.find(x)
		bySet[root] = append(bySet[root], x)
	}
	var out [][]int
	for _, members := range bySet {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		out = append(out, members)
	}
	// Deterministic output order for cursors and tests.
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
