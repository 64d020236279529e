package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"ratepath/internal/domain"
)

// Rate finds a shortest token-hop path from source to target and composes the
// per-edge swap ratios along it into one conversion rate. Among equally short
// paths the lexicographically smallest node sequence wins, so the choice is
// stable across runs.
func (g *Graph) Rate(source, target domain.Address) (float64, []domain.Address, error) {
	source = domain.NormalizeAddress(source.String())
	target = domain.NormalizeAddress(target.String())

	src, ok := g.index[source]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrTokenNotFound, source)
	}
	dst, ok := g.index[target]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrTokenNotFound, target)
	}

	candidates := g.shortestPaths(src, dst)
	if len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: %s -> %s", ErrNoPath, source, target)
	}

	path := g.pickPath(candidates)

	ratio, err := g.composeRatio(path)
	if err != nil {
		return 0, nil, err
	}

	out := make([]domain.Address, len(path))
	for i, id := range path {
		out[i] = g.nodes[id]
	}
	return ratio, out, nil
}

// shortestPaths runs a BFS from src and enumerates every minimum-hop node
// sequence ending at dst by walking the parent sets backwards.
func (g *Graph) shortestPaths(src, dst int) [][]int {
	dist := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = -1
	}
	parents := make([][]int, len(g.nodes))

	dist[src] = 0
	queue := []int{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, id := range g.adj[u] {
			w := g.edges[id].other(u)
			if w == u {
				continue // self loop, never on a shortest path
			}
			switch {
			case dist[w] == -1:
				dist[w] = dist[u] + 1
				parents[w] = []int{u}
				queue = append(queue, w)
			case dist[w] == dist[u]+1 && !slices.Contains(parents[w], u):
				parents[w] = append(parents[w], u)
			}
		}
	}

	if dist[dst] == -1 {
		return nil
	}

	var paths [][]int
	var walk func(n int, tail []int)
	walk = func(n int, tail []int) {
		tail = append(tail, n)
		if n == src {
			path := make([]int, len(tail))
			for i, id := range tail {
				path[len(tail)-1-i] = id
			}
			paths = append(paths, path)
			return
		}
		for _, p := range parents[n] {
			walk(p, tail)
		}
	}
	walk(dst, nil)

	return paths
}

// pickPath dedupes identical node sequences and returns the lexicographically
// smallest one.
func (g *Graph) pickPath(candidates [][]int) []int {
	type keyed struct {
		key  string
		path []int
	}

	seen := make(map[string]struct{}, len(candidates))
	unique := make([]keyed, 0, len(candidates))
	for _, path := range candidates {
		parts := make([]string, len(path))
		for i, id := range path {
			parts[i] = g.nodes[id].String()
		}
		key := strings.Join(parts, ",")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, keyed{key: key, path: path})
	}

	sort.Slice(unique, func(i, j int) bool { return unique[i].key < unique[j].key })
	return unique[0].path
}

// composeRatio walks the path edge by edge. An edge whose record runs with the
// walk multiplies the running ratio, an edge traversed against its record
// divides by it.
func (g *Graph) composeRatio(path []int) (float64, error) {
	ratio := 1.0

	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		e := g.earliestEdge(u, v)
		rec := &e.rec

		r, err := rec.Ratio()
		if err != nil {
			return 0, fmt.Errorf("swap %s: %w", rec.ID(), err)
		}

		if rec.FromToken == g.nodes[u] && rec.ToToken == g.nodes[v] {
			ratio *= r
			continue
		}

		// record runs v -> u, so invert it
		if r == 0 {
			return 0, fmt.Errorf("swap %s has zero ratio, cannot traverse %s -> %s", rec.ID(), g.nodes[u], g.nodes[v])
		}
		ratio /= r
	}

	return ratio, nil
}
