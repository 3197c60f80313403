package graph

import (
	"reflect"
	"testing"
)

func TestOrderDependenciesFirst(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("User", "ProtocolError", Indirect, "status")
	g.AddEdge("Group", "User", Indirect, "owner")
	g.AddEdge("Group", "Vec_User", Indirect, "members")
	g.AddEdge("Vec_User", "User", Indirect, "values")
	g.AddNode("Standalone")

	order := g.Order()
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 nodes, got %v", order)
	}
	for _, e := range g.Edges() {
		if pos[e.Target] >= pos[e.Source] {
			t.Errorf("%s should come before %s in %v", e.Target, e.Source, order)
		}
	}
}

func TestOrderDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *Graph {
		g := New()
		for _, n := range []string{"c", "a", "b", "e", "d"} {
			g.AddNode(n)
		}
		g.AddEdge("d", "a", Indirect, "")
		g.AddEdge("b", "e", Value, "")
		return g
	}
	first := build().Order()
	for range 20 {
		if got := build().Order(); !reflect.DeepEqual(got, first) {
			t.Fatalf("order changed: %v vs %v", got, first)
		}
	}
}

func TestComponentsGroupCycles(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("Node", "Vec_Box_Node", Indirect, "children")
	g.AddEdge("Vec_Box_Node", "Node", Indirect, "values")
	g.AddEdge("Tree", "Node", Indirect, "root")

	comps := g.Components()
	want := [][]string{{"Node", "Vec_Box_Node"}, {"Tree"}}
	if !reflect.DeepEqual(comps, want) {
		t.Errorf("components = %v, want %v", comps, want)
	}
	if cycles := g.Cycles(); len(cycles) != 0 {
		t.Errorf("indirect cycle reported as structural: %v", cycles)
	}
}

func TestCyclesThroughValues(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("A", "B", Value, "b")
	g.AddEdge("B", "A", Value, "a")
	g.AddEdge("C", "C", Value, "next")
	g.AddEdge("D", "D", Indirect, "next")
	g.AddEdge("E", "A", Value, "a")

	cycles := g.Cycles()
	want := [][]string{{"A", "B"}, {"C"}}
	if !reflect.DeepEqual(cycles, want) {
		t.Fatalf("cycles = %v, want %v", cycles, want)
	}

	back := g.BackEdges(cycles[0])
	if len(back) != 1 || back[0].Source != "B" || back[0].Target != "A" || back[0].Via != "a" {
		t.Errorf("back edges = %+v", back)
	}
	self := g.BackEdges(cycles[1])
	if len(self) != 1 || self[0].Via != "next" {
		t.Errorf("self back edge = %+v", self)
	}
}

func TestValueEdgeWins(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("A", "B", Value, "b")
	g.AddEdge("A", "B", Indirect, "c")
	edges := g.Edges()
	if len(edges) != 1 || edges[0].Kind != Value || edges[0].Via != "b" {
		t.Errorf("edges = %+v", edges)
	}
}

func TestEmptyGraph(t *testing.T) {
	t.Parallel()

	g := New()
	if g.Len() != 0 || g.Order() != nil || g.Cycles() != nil {
		t.Errorf("expected empty results for an empty graph")
	}
}
