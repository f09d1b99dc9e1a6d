// Package graph holds the pure traversal functions the runner builds on. Every function
// works on a snapshot of nodes and edges and keeps no state between calls.
//
// Callers pass nodes in parent-before-child order; the functions here rely on that
// ordering but do not re-check it.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meikuraledutech/workflow"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// SortResult is the outcome of TopologicalSort.
type SortResult struct {
	Order []workflow.Node
	// Cycle is set when some nodes could not be ordered. They are appended to Order
	// in their original relative order.
	Cycle *CycleWarning
}

// CycleWarning describes the nodes left over after Kahn's algorithm ran dry.
type CycleWarning struct {
	NodeIDs []string
	// Components are the strongly connected components among NodeIDs that form
	// actual cycles (size > 1, or a node with an edge to itself).
	Components [][]string
}

func (w *CycleWarning) String() string {
	parts := make([]string, 0, len(w.Components))
	for _, c := range w.Components {
		parts = append(parts, strings.Join(c, " -> "))
	}
	return fmt.Sprintf("cycle among %d node(s): %s", len(w.NodeIDs), strings.Join(parts, "; "))
}

// TopologicalSort orders nodes with Kahn's algorithm. Only edges with both endpoints
// inside nodes count toward in-degree. Ready nodes are taken first-in first-out, seeded
// in node order, so the result is deterministic.
func TopologicalSort(nodes []workflow.Node, edges []workflow.Edge) SortResult {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	indeg := make([]int, len(nodes))
	succ := make([][]int, len(nodes))
	for _, e := range edges {
		from, ok := index[e.Source]
		if !ok {
			continue
		}
		to, ok := index[e.Target]
		if !ok {
			continue
		}
		succ[from] = append(succ[from], to)
		indeg[to]++
	}

	queue := make([]int, 0, len(nodes))
	for i := range nodes {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	visited := make([]bool, len(nodes))
	order := make([]workflow.Node, 0, len(nodes))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited[i] = true
		order = append(order, nodes[i])
		for _, j := range succ[i] {
			indeg[j]--
			if indeg[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) == len(nodes) {
		return SortResult{Order: order}
	}

	rest := make([]int, 0, len(nodes)-len(order))
	for i := range nodes {
		if !visited[i] {
			rest = append(rest, i)
			order = append(order, nodes[i])
		}
	}
	return SortResult{Order: order, Cycle: cycleWarning(nodes, rest, succ)}
}

// cycleWarning runs Tarjan's SCC over the leftover nodes so the warning can name
// the cycles instead of just the nodes stuck behind them.
func cycleWarning(nodes []workflow.Node, rest []int, succ [][]int) *CycleWarning {
	w := &CycleWarning{NodeIDs: make([]string, 0, len(rest))}

	left := make(map[int]bool, len(rest))
	g := simple.NewDirectedGraph()
	for _, i := range rest {
		left[i] = true
		g.AddNode(simple.Node(int64(i)))
		w.NodeIDs = append(w.NodeIDs, nodes[i].ID)
	}

	selfLoop := make(map[int]bool)
	for _, i := range rest {
		for _, j := range succ[i] {
			if !left[j] {
				continue
			}
			if i == j {
				// simple graphs reject self edges.
				selfLoop[i] = true
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(int64(i)), simple.Node(int64(j))))
		}
	}

	var comps [][]int
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) == 1 && !selfLoop[int(scc[0].ID())] {
			continue
		}
		comps = append(comps, componentIndexes(scc))
	}
	slices.SortFunc(comps, func(a, b []int) int { return a[0] - b[0] })

	for _, c := range comps {
		ids := make([]string, len(c))
		for k, i := range c {
			ids[k] = nodes[i].ID
		}
		w.Components = append(w.Components, ids)
	}
	return w
}

func componentIndexes(scc []gonum.Node) []int {
	out := make([]int, len(scc))
	for k, n := range scc {
		out[k] = int(n.ID())
	}
	slices.Sort(out)
	return out
}
