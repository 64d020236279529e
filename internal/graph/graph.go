// Package graph builds an undirected token multigraph from swap records and
// computes multi-hop conversion rates over it. A graph instance belongs to one
// conversion request and is discarded afterwards.
package graph

import (
	"errors"

	"ratepath/internal/domain"
)

var (
	// ErrTokenNotFound: the token has no incident swaps in the queried range.
	ErrTokenNotFound = errors.New("token absent from swap graph")
	// ErrNoPath: both tokens are present but live in disjoint components.
	ErrNoPath = errors.New("no conversion path between tokens")
)

// edge connects two token nodes and carries the swap it was built from.
// Parallel edges between the same pair are kept, one per swap.
type edge struct {
	u, v int
	rec  domain.SwapRecord
}

func (e *edge) other(n int) int {
	if e.u == n {
		return e.v
	}
	return e.u
}

type Graph struct {
	index map[domain.Address]int
	nodes []domain.Address
	adj   [][]int // node id -> incident edge ids, in insertion order
	edges []edge
}

// Build indexes every distinct token as a node and adds one edge per record.
// Records are expected to carry normalized addresses.
func Build(records []domain.SwapRecord) *Graph {
	g := &Graph{index: make(map[domain.Address]int)}

	for _, rec := range records {
		u := g.node(rec.FromToken)
		v := g.node(rec.ToToken)

		id := len(g.edges)
		g.edges = append(g.edges, edge{u: u, v: v, rec: rec})
		g.adj[u] = append(g.adj[u], id)
		if v != u {
			g.adj[v] = append(g.adj[v], id)
		}
	}

	return g
}

func (g *Graph) node(addr domain.Address) int {
	if id, ok := g.index[addr]; ok {
		return id
	}
	id := len(g.nodes)
	g.index[addr] = id
	g.nodes = append(g.nodes, addr)
	g.adj = append(g.adj, nil)
	return id
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) HasToken(addr domain.Address) bool {
	_, ok := g.index[domain.NormalizeAddress(addr.String())]
	return ok
}

// earliestEdge returns the first-inserted edge between two adjacent nodes.
// With parallel edges this pins the traversal to one deterministic swap.
func (g *Graph) earliestEdge(u, v int) *edge {
	for _, id := range g.adj[u] {
		e := &g.edges[id]
		if e.other(u) == v {
			return e
		}
	}
	return nil
}
