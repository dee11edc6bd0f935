package graph

import "sync"

// ResultData holds the materialized representation of a node: a CPU buffer,
// a GPU buffer identity, or both. At least one is populated once a node is
// considered executed.
type ResultData struct {
	// CPUData holds the node's output in host memory, laid out row-major
	// with ElementSize(Type)-byte elements in host-native order. Nil until
	// an execution path (CPU, or GPU sync-back) populates it.
	CPUData []byte

	// GPUBuffer is an opaque handle into the active GPU executor's buffer
	// table. Nil when the node has never been materialized on the GPU.
	// It is intentionally an interface{} here so internal/graph does not
	// import internal/gpuexec (which would create an import cycle); the
	// GPU executor is the only code that type-asserts it.
	GPUBuffer interface{}

	// Count is the total element count; always ∏ node.Shape.
	Count int

	// Consumed marks that this node's buffer was stolen by a consumer (CPU
	// in-place reuse or GPU buffer reuse) during execution of a descendant,
	// so gradient paths downstream know not to trust CPUData/GPUBuffer as
	// this node's own values if they are later re-read independently.
	Consumed bool
}

// Node is one vertex of the operation DAG.
type Node struct {
	mu sync.Mutex

	Op   OpKind
	Aux  AuxData
	Type ElementType
	Shape Shape

	// Predecessors are owning edges: a predecessor's RefCount includes one
	// count per Node that lists it here.
	Predecessors []*Node

	// BroadcastMode records which alignment the builder chose for a binary
	// op, so CPU/GPU index arithmetic can replicate it.
	BroadcastMode BroadcastMode

	// RefCount is the number of owning in-edges (children) plus external
	// handles. A node is freed when this reaches zero.
	RefCount int

	// Result is populated once the node has been executed. Nil beforehand.
	Result *ResultData

	// GradientTrace is the set of gradient-variable node identities whose
	// derivative flows through this node. Non-nil once the node has been
	// marked with MarkAsVariable or constructed with a predecessor whose
	// trace is non-empty; nil otherwise.
	GradientTrace map[*Node]bool

	// IsVariable marks this node as having been explicitly registered as a
	// gradient source via MarkAsVariable.
	IsVariable bool

	// ConstantValue holds the single-element literal for OpConstant nodes,
	// ElementSize(Type) bytes wide; nil for every other op kind.
	ConstantValue []byte

	// id is a process-unique identity used for debug output and map keys
	// where pointer identity alone is inconvenient to print.
	id uint64
}

var nodeIDCounter struct {
	mu   sync.Mutex
	next uint64
}

func nextNodeID() uint64 {
	nodeIDCounter.mu.Lock()
	defer nodeIDCounter.mu.Unlock()
	nodeIDCounter.next++
	return nodeIDCounter.next
}

// NewNode allocates a node with the given operation, type, shape, and
// predecessors, wiring reference counts and gradient-trace propagation.
// Builders (see builder*.go) are the only callers; NewNode performs no
// validation of its own; callers must have already validated shapes/types.
func NewNode(op OpKind, t ElementType, shape Shape, preds ...*Node) *Node {
	n := &Node{
		Op:           op,
		Type:         t,
		Shape:        shape,
		Predecessors: preds,
		id:           nextNodeID(),
	}
	for _, p := range preds {
		if p == nil {
			continue
		}
		p.Retain()
		if len(p.GradientTrace) > 0 {
			n.mergeTrace(p.GradientTrace)
		}
	}
	return n
}

// ID returns a process-unique identifier, stable for the node's lifetime.
func (n *Node) ID() uint64 { return n.id }

// Retain increments the reference count. Called once per new owning edge:
// by NewNode for each predecessor, and by external callers that hold onto a
// node handle beyond its use as another node's predecessor.
func (n *Node) Retain() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.RefCount++
}

// Release decrements the reference count and, if it reaches zero, cascades
// the release to predecessors (whose counts may themselves reach zero),
// then frees this node's own result buffers. Safe to call concurrently with
// other Release calls on different nodes; a single node's own count
// mutation is serialized by its mutex, matching spec §3's requirement that
// refcount changes be serialized with respect to execution.
func (n *Node) Release() {
	n.mu.Lock()
	n.RefCount--
	dead := n.RefCount <= 0
	preds := n.Predecessors
	n.mu.Unlock()

	if !dead {
		return
	}
	for _, p := range preds {
		if p != nil {
			p.Release()
		}
	}
	n.mu.Lock()
	n.Result = nil
	n.mu.Unlock()
}

func (n *Node) mergeTrace(other map[*Node]bool) {
	if n.GradientTrace == nil {
		n.GradientTrace = make(map[*Node]bool, len(other))
	}
	for k := range other {
		n.GradientTrace[k] = true
	}
}

// MarkAsVariable registers n as a gradient source: n is added to its own
// trace. Per spec §3, trace membership propagates forward, but n has
// already been built, so existing descendants are not retroactively
// updated — callers must mark variables before building the graph that
// depends on them. Trace propagation in NewNode is always on; there is no
// separate gradient-tracking context to enable.
func (n *Node) MarkAsVariable() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.IsVariable = true
	if n.GradientTrace == nil {
		n.GradientTrace = make(map[*Node]bool, 1)
	}
	n.GradientTrace[n] = true
}

// InTrace reports whether v is in n's gradient trace.
func (n *Node) InTrace(v *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.GradientTrace[v]
}

// HasResult reports whether the node has been materialized.
func (n *Node) HasResult() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Result != nil
}

// SetResult attaches a ResultData after execution.
func (n *Node) SetResult(r *ResultData) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Result = r
}

// ResultSnapshot returns the current ResultData (or nil).
func (n *Node) ResultSnapshot() *ResultData {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Result
}

// RefCountSnapshot returns the current reference count, for tests and
// invariant checks (spec §8 invariant 3).
func (n *Node) RefCountSnapshot() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.RefCount
}

// DemoteToStore converts n in place into a store node holding its current
// result, used by optimize_memory (spec §3 lifecycle) once a node is known
// not to be a gradient source: its Predecessors are released (cascading
// their own refcounts) and it becomes a leaf.
func (n *Node) DemoteToStore() {
	n.mu.Lock()
	if n.IsVariable || len(n.GradientTrace) > 0 {
		n.mu.Unlock()
		return
	}
	preds := n.Predecessors
	n.Predecessors = nil
	n.Op = OpStore
	n.mu.Unlock()

	for _, p := range preds {
		if p != nil {
			p.Release()
		}
	}
}
