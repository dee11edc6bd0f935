// Package codegen fuses a sub-DAG of already-traced, not-yet-materialized
// nodes into GPU kernel source, per spec §4.4: lazy mode fuses a whole
// sub-DAG into one kernel, eager mode emits one kernel per distinct
// (op, result type, parameter types) combination. Grounded directly on
// original_source/src/backend_ocl/codegen_{lazy,eager}.cpp for emission
// order and parameter layout, re-expressed against this module's simplified
// textual kernel DSL (internal/registry's GenerateOCLLazy/GenerateOCLEager)
// instead of literal OpenCL C.
package codegen

import (
	"fmt"
	"strings"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

// Fused is the result of fusing root's backward cone into one kernel: Nodes
// is the evaluation order (root last, matching internal/gpuexec/hostsim's
// NewFusedProgram), Leaves are the already-materialized nodes that become
// kernel parameters P0, P1, ... in the order first encountered, and Source
// is the assembled kernel body.
type Fused struct {
	Nodes  []*graph.Node
	Leaves []*graph.Node
	Source string
}

// Cone returns root's backward cone in evaluation order (root last, matching
// internal/gpuexec/hostsim's NewFusedProgram), stopping descent at any node
// that already carries a result — those become leaves, in first-encountered
// order. Shared by FuseLazy (which additionally emits kernel source for the
// cone) and callers that execute the cone node-by-node in eager mode
// (internal/engine), which need the same traversal without a fused kernel.
func Cone(root *graph.Node) (nodes []*graph.Node, leaves []*graph.Node, err error) {
	visited := make(map[*graph.Node]bool)

	var visit func(n *graph.Node) error
	visit = func(n *graph.Node) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		if n.HasResult() {
			leaves = append(leaves, n)
			return nil
		}
		for _, p := range n.Predecessors {
			if err := visit(p); err != nil {
				return err
			}
		}
		nodes = append(nodes, n)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, nil, err
	}
	return nodes, leaves, nil
}

// FuseLazy traverses root's backward cone depth-first, stopping at any node
// that already carries a result (it becomes a kernel parameter instead of
// being recomputed), and assembles one kernel whose body computes root from
// those parameters. Each non-leaf node's line is produced by its registry
// entry's GenerateOCLLazy, in the same outside-in fusion original_source's
// generateCode builds via queue + prepend; here post-order recursion
// produces the same child-before-parent ordering directly.
func FuseLazy(root *graph.Node) (*Fused, error) {
	state := &registry.CodegenState{}
	visited := make(map[*graph.Node]bool)
	paramNames := make(map[*graph.Node]string)

	var nodes []*graph.Node
	var leaves []*graph.Node
	var lines []string

	var visit func(n *graph.Node) error
	visit = func(n *graph.Node) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		name := state.NameFor(n)

		if n.HasResult() {
			leaves = append(leaves, n)
			pname := fmt.Sprintf("P%d", len(paramNames))
			paramNames[n] = pname
			lines = append(lines, fmt.Sprintf("const %s %s = %s[index %% %d];",
				registry.OCLTypeName(n.Type), name, pname, n.Shape.Count()))
			return nil
		}

		for _, p := range n.Predecessors {
			if err := visit(p); err != nil {
				return err
			}
		}

		entry, ok := registry.Get(n.Op)
		if !ok {
			return fmt.Errorf("codegen: no registry entry for op %v", n.Op)
		}
		line, err := entry.GenerateOCLLazy(n, name, state)
		if err != nil {
			return fmt.Errorf("codegen: lazy codegen for op %v: %w", n.Op, err)
		}
		lines = append(lines, line)
		nodes = append(nodes, n)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("codegen: root %v is already materialized, nothing to fuse", root.Op)
	}

	var b strings.Builder
	b.WriteString("long index = get_global_id(0);\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "R[index] = %s;\n", state.NameFor(root))

	return &Fused{Nodes: nodes, Leaves: leaves, Source: b.String()}, nil
}
