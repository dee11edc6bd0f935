package registry

import "github.com/flint-go/flint/internal/graph"

// CPUView is a read-only view of one predecessor's materialized buffer,
// handed to ExecuteCPU alongside the output buffer.
type CPUView struct {
	Data  []byte
	Type  graph.ElementType
	Shape graph.Shape
}

// CodegenState accumulates the fused-kernel context a lazy-codegen pass
// shares across the sub-DAG it is fusing: variable names already assigned
// to nodes, the running variable counter, and any index-rewrite preamble
// lines emitted so far. One state is threaded through a single kernel's
// fusion pass; internal/codegen owns its construction and traversal order.
type CodegenState struct {
	VarNames map[*graph.Node]string
	NextVar  int
	Preamble []string
}

// NameFor returns the variable name assigned to n, assigning a fresh one
// (vN) if this is the first time n is referenced in this fusion pass.
func (s *CodegenState) NameFor(n *graph.Node) string {
	if s.VarNames == nil {
		s.VarNames = make(map[*graph.Node]string)
	}
	if name, ok := s.VarNames[n]; ok {
		return name
	}
	s.NextVar++
	name := "v" + itoa(s.NextVar)
	s.VarNames[n] = name
	return name
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 8)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Entry is the operation registry's per-kind record, per spec §4.7.
type Entry struct {
	// Score is a non-negative integer estimating per-element arithmetic
	// cost, used by the backend selector (internal/backend). The store,
	// constant, reshape, flatten, concat and expand entries have Score 0.
	Score int

	// ReuseParameter reports whether the output may be written into the
	// buffer of the predecessor at inputIndex, conditioned only on the
	// operation's own semantics (element-wise, matching shape/type): the
	// executor additionally requires reference count 1 and a non-store,
	// non-gradient-source predecessor before actually stealing the buffer.
	ReuseParameter func(node *graph.Node, inputIndex int) bool

	// ExecuteCPU writes node's output over the half-open element range
	// [from, to) into out, reading predecessor values from views (indexed
	// the same as node.Predecessors).
	ExecuteCPU func(node *graph.Node, views []CPUView, out []byte, from, to int) error

	// GenerateOCLLazy emits the kernel source fragment for node as part of
	// a fused lazy kernel, naming its inputs via state and returning the
	// complete statement that assigns node's value to name.
	GenerateOCLLazy func(node *graph.Node, name string, state *CodegenState) (string, error)

	// GenerateOCLEager emits a complete, standalone kernel for one
	// invocation of this op kind over the given result/parameter types.
	GenerateOCLEager func(resultType graph.ElementType, paramTypes []graph.ElementType) (string, error)

	// LocalGradient returns the adjoint contribution flowing back to
	// node.Predecessors[inputIndex], given the upstream adjoint of node's
	// output.
	LocalGradient func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error)

	// FreeAdditionalData releases op-specific auxiliary state beyond the
	// plain AuxData struct (currently none of our operations allocate any,
	// since AuxData is a value type with no owned handles, but the hook is
	// kept so a future op with external resources has somewhere to put
	// cleanup).
	FreeAdditionalData func(node *graph.Node)
}

// Table is the closed map from operation kind to its registry entry. Built
// up by the op_*.go files' init functions.
var Table = map[graph.OpKind]Entry{}

// register adds entry to Table under kind; called from each op_*.go file's
// init. Panics on a duplicate kind, which would indicate a programming
// error (two files claiming the same op), not a runtime condition.
func register(kind graph.OpKind, entry Entry) {
	if _, exists := Table[kind]; exists {
		panic("registry: duplicate entry for op kind")
	}
	Table[kind] = entry
}

// Get returns the entry for kind and whether it exists.
func Get(kind graph.OpKind) (Entry, bool) {
	e, ok := Table[kind]
	return e, ok
}

func noFree(*graph.Node) {}
