// Package autograd implements reverse-mode gradient accumulation over the
// operation graph, driven entirely by each op's registry.Entry.LocalGradient
// rule.
//
// The source material's global "gradient context" toggle (enable/disable
// trace tracking around graph construction) is collapsed here: internal/graph
// always propagates the gradient trace forward at node-construction time.
// The toggle only ever existed to skip the cost of trace-set merging outside
// a gradient context; that cost is a small constant-factor map merge per
// node, so always tracking is simpler and avoids a mutable global flag
// (matching the corpus's general preference for explicit handles over
// process-wide state where a global isn't a hard requirement).
package autograd

import (
	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
	"github.com/flint-go/flint/pkg/ferrors"
)

// Materializer executes a node's backward cone and returns its result,
// satisfied by internal/cpuexec.Executor. Accepting the interface here
// (rather than importing cpuexec) keeps autograd from depending on a
// specific execution backend.
type Materializer interface {
	Materialize(*graph.Node) (*graph.ResultData, error)
}

// CalculateGradients computes gᵢ = ∂y/∂xᵢ for each of xs, per spec §4.5.
// Every xᵢ must already have been registered as a gradient variable
// (graph.Node.MarkAsVariable), and y's gradient trace must contain at least
// one of them.
func CalculateGradients(y *graph.Node, xs []*graph.Node, exec Materializer) ([]*graph.Node, error) {
	if y == nil {
		return nil, ferrors.New(ferrors.InternalError, "calculate_gradients: nil output node")
	}
	xsSet := make(map[*graph.Node]bool, len(xs))
	for _, x := range xs {
		if x == nil {
			return nil, ferrors.New(ferrors.InternalError, "calculate_gradients: nil gradient variable")
		}
		if !x.IsVariable {
			return nil, ferrors.New(ferrors.IllegalDerive, "calculate_gradients: variable was not marked as a gradient source")
		}
		xsSet[x] = true
	}
	if !inTraceAny(y, xsSet) {
		return nil, ferrors.New(ferrors.IllegalDerive, "calculate_gradients: output's gradient trace contains none of the requested variables")
	}

	cone, order := collectCone(y, xsSet)

	adjoints := make(map[*graph.Node]*graph.Node, len(order))
	seed, err := graph.Constant(oneFloat64(), graph.Float64, y.Shape.Clone())
	if err != nil {
		return nil, err
	}
	seed.Retain()
	adjoints[y] = seed

	// Process in reverse topological order: y first, its furthest
	// ancestors last.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		adjNode := adjoints[node]
		if adjNode == nil {
			continue
		}
		entry, ok := registry.Get(node.Op)
		if !ok {
			return nil, ferrors.New(ferrors.InternalError, "calculate_gradients: no registry entry for op")
		}
		for i, p := range node.Predecessors {
			if !cone[p] {
				continue
			}
			contrib, err := entry.LocalGradient(node, i, adjNode)
			if err != nil {
				return nil, ferrors.Wrap(ferrors.IllegalDerive, "calculate_gradients: local gradient rule failed", err)
			}
			contrib, err = unbroadcast(contrib, p.Shape)
			if err != nil {
				return nil, err
			}

			var accumulated *graph.Node
			if existing, ok := adjoints[p]; ok {
				summed, err := graph.Add(existing, contrib)
				if err != nil {
					return nil, err
				}
				existing.Release()
				accumulated = summed
			} else {
				accumulated = contrib
			}

			stored, err := eagerlyMaterialize(accumulated, exec)
			if err != nil {
				return nil, err
			}
			adjoints[p] = stored
		}
		if !xsSet[node] {
			adjNode.Release()
			delete(adjoints, node)
		}
	}

	out := make([]*graph.Node, len(xs))
	for i, x := range xs {
		g, ok := adjoints[x]
		if !ok {
			return nil, ferrors.New(ferrors.IllegalDerive, "calculate_gradients: requested variable does not lie in the output's backward cone")
		}
		out[i] = g
	}
	return out, nil
}

// eagerlyMaterialize executes g on the CPU executor and wraps the result in
// a fresh store node, collapsing what may be a multi-node accumulation
// chain (sum-reduce, reshape, add) so deep graphs don't build up a long
// unmaterialized recomputation chain across many accumulation steps.
func eagerlyMaterialize(g *graph.Node, exec Materializer) (*graph.Node, error) {
	g.Retain()
	defer g.Release()

	result, err := exec.Materialize(g)
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), result.CPUData...)
	stored, err := graph.Store(data, g.Type, g.Shape.Clone())
	if err != nil {
		return nil, err
	}
	stored.Retain()
	return stored, nil
}

// collectCone returns the set of y's ancestors (inclusive) whose gradient
// trace contains at least one requested variable, plus that same set
// linearized in forward topological order (predecessors before
// dependents). Trace membership is monotone non-decreasing from
// predecessor to dependent, so pruning a node whose trace lacks every
// requested variable also prunes all of its ancestors correctly.
func collectCone(y *graph.Node, xs map[*graph.Node]bool) (cone map[*graph.Node]bool, order []*graph.Node) {
	cone = make(map[*graph.Node]bool)
	visited := make(map[*graph.Node]bool)

	var visit func(n *graph.Node)
	visit = func(n *graph.Node) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		if !inTraceAny(n, xs) {
			return
		}
		cone[n] = true
		for _, p := range n.Predecessors {
			visit(p)
		}
		order = append(order, n)
	}
	visit(y)
	return cone, order
}

func inTraceAny(n *graph.Node, xs map[*graph.Node]bool) bool {
	for x := range xs {
		if n == x || n.InTrace(x) {
			return true
		}
	}
	return false
}

func oneFloat64() []byte {
	buf := make([]byte, 8)
	registry.WriteElement(buf, graph.Float64, 0, 1)
	return buf
}
