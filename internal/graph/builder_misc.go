package graph

import "github.com/flint-go/flint/pkg/ferrors"

// IndexRead gathers elements from a along axis using the integer indices
// carried by index (index.Type must be an integer type).
func IndexRead(a, index *Node, axis int) (*Node, error) {
	if a == nil || index == nil {
		return nil, ferrors.New(ferrors.InternalError, "index_read: nil predecessor")
	}
	if index.Type != Int32 && index.Type != Int64 {
		return nil, ferrors.New(ferrors.WrongType, "index_read: index tensor must be integer-typed")
	}
	if axis < 0 || axis >= a.Shape.Rank() {
		return nil, ferrors.New(ferrors.InvalidSelect, "index_read: axis out of range")
	}
	out := a.Shape.Clone()
	out[axis] = index.Shape.Count()
	n := NewNode(OpIndexRead, a.Type, out, a, index)
	n.Aux.IndexAxis = axis
	return n, nil
}

// IndexWrite scatters values from b into a copy of a along axis at the
// positions named by index, returning the modified copy.
func IndexWrite(a, index, b *Node, axis int) (*Node, error) {
	if a == nil || index == nil || b == nil {
		return nil, ferrors.New(ferrors.InternalError, "index_write: nil predecessor")
	}
	if index.Type != Int32 && index.Type != Int64 {
		return nil, ferrors.New(ferrors.WrongType, "index_write: index tensor must be integer-typed")
	}
	if axis < 0 || axis >= a.Shape.Rank() {
		return nil, ferrors.New(ferrors.InvalidSelect, "index_write: axis out of range")
	}
	t, err := Promote(a.Type, b.Type)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.WrongType, "index_write: type promotion failed", err)
	}
	n := NewNode(OpIndexWrite, t, a.Shape.Clone(), a, index, b)
	n.Aux.IndexAxis = axis
	return n, nil
}

// Dropout zeroes each element of a independently with probability p,
// scaling surviving elements by 1/(1-p) (inverted dropout, matching the
// reference implementation). p must be in [0, 1).
func Dropout(a *Node, p float64) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "dropout: nil predecessor")
	}
	if p < 0 || p >= 1 {
		return nil, ferrors.New(ferrors.InvalidSelect, "dropout: probability must be in [0, 1)")
	}
	n := NewNode(OpDropout, a.Type, a.Shape.Clone(), a)
	n.Aux.DropoutP = p
	return n, nil
}

// Convert casts a's elements to t, with no implicit promotion lattice
// applied: the caller names the exact target type.
func Convert(a *Node, t ElementType) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "convert: nil predecessor")
	}
	if ElementSize(t) == 0 {
		return nil, ferrors.New(ferrors.WrongType, "convert: invalid target type")
	}
	n := NewNode(OpConvert, t, a.Shape.Clone(), a)
	n.Aux.ConvertTo = t
	return n, nil
}

// Builder chaining wrappers.

func (bd *Builder) IndexRead(a, index *Node, axis int) *Node {
	if anyNil(a, index) {
		return nil
	}
	return bd.record(IndexRead(a, index, axis))
}

func (bd *Builder) IndexWrite(a, index, b *Node, axis int) *Node {
	if anyNil(a, index, b) {
		return nil
	}
	return bd.record(IndexWrite(a, index, b, axis))
}

func (bd *Builder) Dropout(a *Node, p float64) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Dropout(a, p))
}

func (bd *Builder) Convert(a *Node, t ElementType) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(Convert(a, t))
}
