package graph

import "github.com/flint-go/flint/pkg/ferrors"

// Store creates a leaf node wrapping caller-provided data already resident
// in CPUData (row-major, ElementSize(t)-byte elements, host order).
func Store(data []byte, t ElementType, shape Shape) (*Node, error) {
	if !shape.Valid() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "store: shape must be non-empty with positive axes")
	}
	expected := shape.Count() * ElementSize(t)
	if len(data) != expected {
		return nil, ferrors.New(ferrors.WrongType, "store: data length does not match shape*element size")
	}
	n := NewNode(OpStore, t, shape.Clone())
	n.Result = &ResultData{CPUData: data, Count: shape.Count()}
	return n, nil
}

// Constant creates a leaf node whose every element has the same value,
// encoded by the caller into a single element's worth of bytes.
func Constant(value []byte, t ElementType, shape Shape) (*Node, error) {
	if !shape.Valid() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "constant: shape must be non-empty with positive axes")
	}
	if len(value) != ElementSize(t) {
		return nil, ferrors.New(ferrors.WrongType, "constant: value must be exactly one element wide")
	}
	n := NewNode(OpConstant, t, shape.Clone())
	n.ConstantValue = append([]byte(nil), value...) // one element, replicated lazily by the executor
	return n, nil
}

// Arange creates a 1-D node of count elements: start, start+step, start+2*step, ...
func Arange(count int, start, step float64, t ElementType) (*Node, error) {
	if count <= 0 {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "arange: count must be positive")
	}
	n := NewNode(OpArange, t, Shape{count})
	n.Aux.ArangeStart = start
	n.Aux.ArangeStep = step
	return n, nil
}

// Random creates a node of the given shape filled with uniform [0,1)
// pseudo-random values (always float64, matching the reference
// implementation's random generator).
func Random(shape Shape) (*Node, error) {
	if !shape.Valid() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "random: shape must be non-empty with positive axes")
	}
	return NewNode(OpRandom, Float64, shape.Clone()), nil
}

func binaryOp(kind OpKind, a, b *Node) (*Node, error) {
	if a == nil || b == nil {
		return nil, ferrors.New(ferrors.InternalError, "binary op: nil predecessor")
	}
	shape, mode, ok := BroadcastShapes(a.Shape, b.Shape)
	if !ok {
		return nil, ferrors.New(ferrors.IncompatibleShapes, "binary op: shapes cannot be broadcast together")
	}
	t, err := Promote(a.Type, b.Type)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.WrongType, "binary op: type promotion failed", err)
	}
	n := NewNode(kind, t, shape, a, b)
	n.BroadcastMode = mode
	return n, nil
}

func unaryOp(kind OpKind, a *Node) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "unary op: nil predecessor")
	}
	t := a.Type
	if IsTranscendental(kind) {
		t = PromoteTranscendental(t)
	}
	return NewNode(kind, t, a.Shape.Clone(), a), nil
}

func Add(a, b *Node) (*Node, error) { return binaryOp(OpAdd, a, b) }
func Sub(a, b *Node) (*Node, error) { return binaryOp(OpSub, a, b) }
func Mul(a, b *Node) (*Node, error) { return binaryOp(OpMul, a, b) }
func Div(a, b *Node) (*Node, error) { return binaryOp(OpDiv, a, b) }
func Pow(a, b *Node) (*Node, error) { return binaryOp(OpPow, a, b) }

func Neg(a *Node) (*Node, error)  { return unaryOp(OpNeg, a) }
func Abs(a *Node) (*Node, error)  { return unaryOp(OpAbs, a) }
func Sign(a *Node) (*Node, error) { return unaryOp(OpSign, a) }
func Even(a *Node) (*Node, error) { return unaryOp(OpEven, a) }
func Log(a *Node) (*Node, error)   { return unaryOp(OpLog, a) }
func Log2(a *Node) (*Node, error)  { return unaryOp(OpLog2, a) }
func Log10(a *Node) (*Node, error) { return unaryOp(OpLog10, a) }
func Exp(a *Node) (*Node, error)   { return unaryOp(OpExp, a) }
func Sqrt(a *Node) (*Node, error)  { return unaryOp(OpSqrt, a) }
func Sin(a *Node) (*Node, error)   { return unaryOp(OpSin, a) }
func Cos(a *Node) (*Node, error)   { return unaryOp(OpCos, a) }
func Tan(a *Node) (*Node, error)   { return unaryOp(OpTan, a) }
func Asin(a *Node) (*Node, error)  { return unaryOp(OpAsin, a) }
func Acos(a *Node) (*Node, error)  { return unaryOp(OpAcos, a) }
func Atan(a *Node) (*Node, error)  { return unaryOp(OpAtan, a) }

// Comparisons always yield int32 (0/1), regardless of operand types, since
// the reference semantics treat them as a boolean mask rather than a
// promoted arithmetic result.
func comparisonOp(kind OpKind, a, b *Node) (*Node, error) {
	if a == nil || b == nil {
		return nil, ferrors.New(ferrors.InternalError, "comparison: nil predecessor")
	}
	shape, mode, ok := BroadcastShapes(a.Shape, b.Shape)
	if !ok {
		return nil, ferrors.New(ferrors.IncompatibleShapes, "comparison: shapes cannot be broadcast together")
	}
	n := NewNode(kind, Int32, shape, a, b)
	n.BroadcastMode = mode
	return n, nil
}

func Less(a, b *Node) (*Node, error)    { return comparisonOp(OpLess, a, b) }
func Equal(a, b *Node) (*Node, error)   { return comparisonOp(OpEqual, a, b) }
func Greater(a, b *Node) (*Node, error) { return comparisonOp(OpGreater, a, b) }

// Builder chaining wrappers.

func (bd *Builder) Add(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Add(a, b))
}

func (bd *Builder) Sub(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Sub(a, b))
}

func (bd *Builder) Mul(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Mul(a, b))
}

func (bd *Builder) Div(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Div(a, b))
}

func (bd *Builder) Pow(a, b *Node) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Pow(a, b))
}

func (bd *Builder) Neg(a *Node) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Neg(a))
}

func (bd *Builder) Log(a *Node) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Log(a))
}

func (bd *Builder) Sqrt(a *Node) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Sqrt(a))
}
