// Package graph builds the dependency graph between emitted items and finds
// the cycles that emission has to break.
package graph

import (
	"sort"
)

// EdgeKind tells whether a dependency holds its target inline or behind a
// heap indirection.
type EdgeKind int

const (
	Indirect EdgeKind = iota
	Value
)

// Edge is one dependency. Via names the field or argument that introduced
// it.
type Edge struct {
	Source string
	Target string
	Kind   EdgeKind
	Via    string
}

// Graph is a directed graph keyed by item name. The zero value is not
// usable; call New.
type Graph struct {
	nodes map[string]struct{}
	out   map[string]map[string]Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string]map[string]Edge),
	}
}

// AddNode adds a node without edges.
func (g *Graph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge records that source depends on target. A value edge replaces an
// indirect edge between the same nodes, never the reverse.
func (g *Graph) AddEdge(source, target string, kind EdgeKind, via string) {
	g.AddNode(source)
	g.AddNode(target)
	if g.out[source] == nil {
		g.out[source] = make(map[string]Edge)
	}
	if prev, ok := g.out[source][target]; ok && prev.Kind >= kind {
		return
	}
	g.out[source][target] = Edge{Source: source, Target: target, Kind: kind, Via: via}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Edges returns every edge sorted by source, then target.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, src := range g.sortedNodes() {
		for _, tgt := range sortedKeys(g.out[src]) {
			out = append(out, g.out[src][tgt])
		}
	}
	return out
}

// Components returns the strongly connected components with dependencies
// before their dependents. Members of a component are sorted; the order
// is deterministic for a given graph.
func (g *Graph) Components() [][]string {
	return g.tarjan(func(Edge) bool { return true })
}

// Order returns every node with dependencies first.
func (g *Graph) Order() []string {
	var out []string
	for _, c := range g.Components() {
		out = append(out, c...)
	}
	return out
}

// Cycles returns the components connected through value edges alone,
// including single nodes that hold themselves by value.
func (g *Graph) Cycles() [][]string {
	var out [][]string
	for _, c := range g.tarjan(func(e Edge) bool { return e.Kind == Value }) {
		if len(c) > 1 {
			out = append(out, c)
			continue
		}
		if e, ok := g.out[c[0]][c[0]]; ok && e.Kind == Value {
			out = append(out, c)
		}
	}
	return out
}

// BackEdges returns, for a cycle from Cycles, the value edges that close it:
// those leading from a member to a member that sorts no later. Breaking
// them leaves the component acyclic.
func (g *Graph) BackEdges(cycle []string) []Edge {
	rank := make(map[string]int, len(cycle))
	for i, n := range cycle {
		rank[n] = i
	}
	var out []Edge
	for _, src := range cycle {
		for _, tgt := range sortedKeys(g.out[src]) {
			e := g.out[src][tgt]
			if r, ok := rank[tgt]; ok && e.Kind == Value && r <= rank[src] {
				out = append(out, e)
			}
		}
	}
	return out
}

// tarjan runs Tarjan's algorithm over the edges accepted by keep. Nodes and
// successors are visited in sorted order so the output is stable.
func (g *Graph) tarjan(keep func(Edge) bool) [][]string {
	index := make(map[string]int, len(g.nodes))
	low := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var out [][]string
	next := 0

	var connect func(v string)
	connect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range sortedKeys(g.out[v]) {
			if !keep(g.out[v][w]) {
				continue
			}
			if _, seen := index[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			out = append(out, comp)
		}
	}

	for _, v := range g.sortedNodes() {
		if _, seen := index[v]; !seen {
			connect(v)
		}
	}
	return out
}

func (g *Graph) sortedNodes() []string {
	return sortedKeys(g.nodes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
