package graph

import "github.com/flint-go/flint/pkg/ferrors"

func reduceOp(kind OpKind, a *Node, axis int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "reduce: nil predecessor")
	}
	if axis < 0 || axis >= a.Shape.Rank() {
		return nil, ferrors.New(ferrors.InvalidSelect, "reduce: axis out of range")
	}
	out := make(Shape, 0, a.Shape.Rank())
	for i, d := range a.Shape {
		if i == axis {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = Shape{1}
	}
	n := NewNode(kind, a.Type, out, a)
	n.Aux.Axis = axis
	return n, nil
}

func ReduceSum(a *Node, axis int) (*Node, error) { return reduceOp(OpReduceSum, a, axis) }
func ReduceMul(a *Node, axis int) (*Node, error) { return reduceOp(OpReduceMul, a, axis) }
func ReduceMin(a *Node, axis int) (*Node, error) { return reduceOp(OpReduceMin, a, axis) }
func ReduceMax(a *Node, axis int) (*Node, error) { return reduceOp(OpReduceMax, a, axis) }

// Matmul performs batched matrix multiplication: the trailing two axes of a
// and b are treated as matrices (a's columns must equal b's rows), and any
// leading batch axes are broadcast against each other using the same
// alignment rules as element-wise ops.
func Matmul(a, b *Node) (*Node, error) {
	if a == nil || b == nil {
		return nil, ferrors.New(ferrors.InternalError, "matmul: nil predecessor")
	}
	ra, rb := a.Shape.Rank(), b.Shape.Rank()
	if ra < 2 || rb < 2 {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "matmul: operands must have rank >= 2")
	}
	m, k := a.Shape[ra-2], a.Shape[ra-1]
	k2, n := b.Shape[rb-2], b.Shape[rb-1]
	if k != k2 {
		return nil, ferrors.New(ferrors.IncompatibleShapes, "matmul: inner dimensions must match")
	}

	batchA := a.Shape[:ra-2]
	batchB := b.Shape[:rb-2]
	batchShape, mode, ok := BroadcastShapes(batchA, batchB)
	if !ok {
		if len(batchA) == 0 && len(batchB) == 0 {
			batchShape, mode = Shape{}, ModeForward
		} else {
			return nil, ferrors.New(ferrors.IncompatibleShapes, "matmul: batch dimensions cannot be broadcast")
		}
	}

	t, err := Promote(a.Type, b.Type)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.WrongType, "matmul: type promotion failed", err)
	}

	out := make(Shape, 0, len(batchShape)+2)
	out = append(out, batchShape...)
	out = append(out, m, n)

	node := NewNode(OpMatmul, t, out, a, b)
	node.BroadcastMode = mode
	return node, nil
}

// Builder chaining wrappers.

func (bd *Builder) ReduceSum(a *Node, axis int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(ReduceSum(a, axis))
}

func (bd *Builder) ReduceMul(a *Node, axis int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(ReduceMul(a, axis))
}

func (bd *Builder) ReduceMin(a *Node, axis int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(ReduceMin(a, axis))
}

func (bd *Builder) ReduceMax(a *Node, axis int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(ReduceMax(a, axis))
}

func (bd *Builder) Matmul(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Matmul(a, b))
}
