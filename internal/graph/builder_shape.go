package graph

import "github.com/flint-go/flint/pkg/ferrors"

// Reshape reinterprets a's elements into target, which must have the same
// total element count.
func Reshape(a *Node, target Shape) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "reshape: nil predecessor")
	}
	if !target.Valid() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "reshape: target shape must be non-empty with positive axes")
	}
	if target.Count() != a.Shape.Count() {
		return nil, ferrors.New(ferrors.IncompatibleShapes, "reshape: element count mismatch")
	}
	n := NewNode(OpReshape, a.Type, target.Clone(), a)
	n.Aux.TargetShape = target.Clone()
	return n, nil
}

// Flatten collapses a into a single axis of Shape.Count() elements.
func Flatten(a *Node) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "flatten: nil predecessor")
	}
	target := Shape{a.Shape.Count()}
	n := NewNode(OpFlatten, a.Type, target, a)
	n.Aux.TargetShape = target.Clone()
	return n, nil
}

// Transpose permutes a's axes according to perm, a permutation of
// [0, a.Shape.Rank()).
func Transpose(a *Node, perm []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "transpose: nil predecessor")
	}
	if len(perm) != a.Shape.Rank() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "transpose: permutation length must equal rank")
	}
	seen := make([]bool, len(perm))
	out := make(Shape, len(perm))
	for i, axis := range perm {
		if axis < 0 || axis >= len(perm) || seen[axis] {
			return nil, ferrors.New(ferrors.InvalidSelect, "transpose: permutation must visit each axis exactly once")
		}
		seen[axis] = true
		out[i] = a.Shape[axis]
	}
	n := NewNode(OpTranspose, a.Type, out, a)
	n.Aux.Axes = append([]int(nil), perm...)
	return n, nil
}

// Repeat tiles a along each axis by the corresponding factor in counts.
func Repeat(a *Node, counts []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "repeat: nil predecessor")
	}
	if len(counts) != a.Shape.Rank() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "repeat: counts length must equal rank")
	}
	out := make(Shape, a.Shape.Rank())
	for i, c := range counts {
		if c <= 0 {
			return nil, ferrors.New(ferrors.InvalidSelect, "repeat: counts must be positive")
		}
		out[i] = a.Shape[i] * c
	}
	n := NewNode(OpRepeat, a.Type, out, a)
	n.Aux.Axes = append([]int(nil), counts...)
	return n, nil
}

// Slice selects [start[i], end[i]) along each axis i with the given step,
// per spec §4.1's SliceOutputSize formula. A negative start[i]/end[i] is
// interpreted from the end of the axis, normalized to a.Shape[i]+start[i]
// (resp. end[i]) before any bounds check, so a reversed slice can
// legitimately carry an end index past the beginning of the axis (e.g.
// start=4, end=-6, step=-1 on a length-5 axis normalizes end to -1 and
// walks all five elements in reverse).
func Slice(a *Node, start, end, step []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "slice: nil predecessor")
	}
	rank := a.Shape.Rank()
	if len(start) != rank || len(end) != rank || len(step) != rank {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "slice: start/end/step length must equal rank")
	}
	normStart := make([]int, rank)
	normEnd := make([]int, rank)
	out := make(Shape, rank)
	for i := 0; i < rank; i++ {
		if step[i] == 0 {
			return nil, ferrors.New(ferrors.InvalidSelect, "slice: step must be non-zero")
		}
		s, e := start[i], end[i]
		if s < 0 {
			s = a.Shape[i] + s
		}
		if e < 0 {
			e = a.Shape[i] + e
		}
		if (step[i] < 0 && e > s) || (step[i] > 0 && e < s) {
			return nil, ferrors.New(ferrors.InvalidSelect, "slice: start/end/step combination yields an empty result")
		}
		size := SliceOutputSize(s, e, step[i])
		if size > a.Shape[i] {
			return nil, ferrors.New(ferrors.InvalidSelect, "slice: result dimension larger than source tensor")
		}
		normStart[i] = s
		normEnd[i] = e
		out[i] = size
	}
	n := NewNode(OpSlice, a.Type, out, a)
	n.Aux.SliceStart = normStart
	n.Aux.SliceEnd = normEnd
	n.Aux.SliceStep = append([]int(nil), step...)
	return n, nil
}

// Extend embeds a into a larger target shape at offset with the given
// stride per axis; the dual of Slice (spec §4.1).
func Extend(a *Node, target Shape, offset, stride []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "extend: nil predecessor")
	}
	rank := a.Shape.Rank()
	if !target.Valid() || target.Rank() != rank {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "extend: target shape must match predecessor rank")
	}
	if len(offset) != rank || len(stride) != rank {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "extend: offset/stride length must equal rank")
	}
	for i := 0; i < rank; i++ {
		if stride[i] <= 0 {
			return nil, ferrors.New(ferrors.InvalidSelect, "extend: stride must be positive")
		}
		if offset[i] < 0 || offset[i]+(a.Shape[i]-1)*stride[i] >= target[i] {
			return nil, ferrors.New(ferrors.InvalidSelect, "extend: offset/stride places data outside target")
		}
	}
	n := NewNode(OpExtend, a.Type, target.Clone(), a)
	n.Aux.ExtendShape = target.Clone()
	n.Aux.ExtendOffset = append([]int(nil), offset...)
	n.Aux.ExtendStride = append([]int(nil), stride...)
	return n, nil
}

// Concat joins a and b along axis; every other axis must match exactly
// (see DESIGN.md's Open Question resolution — no broadcasting on concat).
func Concat(a, b *Node, axis int) (*Node, error) {
	if a == nil || b == nil {
		return nil, ferrors.New(ferrors.InternalError, "concat: nil predecessor")
	}
	if a.Shape.Rank() != b.Shape.Rank() {
		return nil, ferrors.New(ferrors.IncompatibleShapes, "concat: rank mismatch")
	}
	if axis < 0 || axis >= a.Shape.Rank() {
		return nil, ferrors.New(ferrors.InvalidSelect, "concat: axis out of range")
	}
	for i := 0; i < a.Shape.Rank(); i++ {
		if i == axis {
			continue
		}
		if a.Shape[i] != b.Shape[i] {
			return nil, ferrors.New(ferrors.IncompatibleShapes, "concat: non-concat axes must match exactly")
		}
	}
	t, err := Promote(a.Type, b.Type)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.WrongType, "concat: type promotion failed", err)
	}
	out := a.Shape.Clone()
	out[axis] = a.Shape[axis] + b.Shape[axis]
	n := NewNode(OpConcat, t, out, a, b)
	n.Aux.Axis = axis
	return n, nil
}

// Expand inserts a new axis of size 1 at position axis, then broadcasts it
// to size count (a convenience composition the original exposes directly).
func Expand(a *Node, axis, count int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "expand: nil predecessor")
	}
	if axis < 0 || axis > a.Shape.Rank() {
		return nil, ferrors.New(ferrors.InvalidSelect, "expand: axis out of range")
	}
	if count <= 0 {
		return nil, ferrors.New(ferrors.InvalidSelect, "expand: count must be positive")
	}
	out := make(Shape, 0, a.Shape.Rank()+1)
	out = append(out, a.Shape[:axis]...)
	out = append(out, count)
	out = append(out, a.Shape[axis:]...)
	n := NewNode(OpExpand, a.Type, out, a)
	n.Aux.Axis = axis
	n.Aux.TargetShape = out.Clone()
	return n, nil
}

// Builder chaining wrappers.

func (bd *Builder) Reshape(a *Node, target Shape) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Reshape(a, target))
}

func (bd *Builder) Flatten(a *Node) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Flatten(a))
}

func (bd *Builder) Transpose(a *Node, perm []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Transpose(a, perm))
}

func (bd *Builder) Repeat(a *Node, counts []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Repeat(a, counts))
}

func (bd *Builder) Slice(a *Node, start, end, step []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Slice(a, start, end, step))
}

func (bd *Builder) Extend(a *Node, target Shape, offset, stride []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Extend(a, target, offset, stride))
}

func (bd *Builder) Concat(a, b *Node, axis int) *Node {
	if anyNil(a, b) {
		return nil
	}
	return bd.record(Concat(a, b, axis))
}

func (bd *Builder) Expand(a *Node, axis, count int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Expand(a, axis, count))
}
