package cpuexec

import "github.com/flint-go/flint/internal/graph"

// topoOrder returns sink's backward cone in forward topological order
// (predecessors before dependents), with duplicates removed. It traverses
// depth-first from sink, emitting each node in post-order (after all of its
// predecessors) — equivalent to the
// spec's "reverse topological order with duplicates removed, then processed
// forward."
func topoOrder(sink *graph.Node) []*graph.Node {
	visited := make(map[*graph.Node]bool)
	var order []*graph.Node

	var visit func(n *graph.Node)
	visit = func(n *graph.Node) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.Predecessors {
			visit(p)
		}
		order = append(order, n)
	}
	visit(sink)
	return order
}
