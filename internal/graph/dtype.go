// Package graph implements the operation DAG: node construction, shape and
// type propagation, broadcasting, and reference-counted lifecycle.
package graph

import "fmt"

// ElementType is one of the four element types the engine supports. The
// zero value is intentionally invalid so an uninitialized ElementType is
// never mistaken for Int32.
type ElementType int

const (
	invalidType ElementType = iota
	Int32
	Int64
	Float32
	Float64
)

// String returns the human-readable name of t.
func (t ElementType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// rank in the promotion lattice int32 < int64 < float32 < float64.
func (t ElementType) rank() int {
	switch t {
	case Int32:
		return 0
	case Int64:
		return 1
	case Float32:
		return 2
	case Float64:
		return 3
	default:
		return -1
	}
}

// IsFloat reports whether t is a floating-point type.
func (t ElementType) IsFloat() bool {
	return t == Float32 || t == Float64
}

// ElementSize returns the size in bytes of a single element of t.
func ElementSize(t ElementType) int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

// Promote returns the result type of a binary operation between a and b,
// per the total order int32 < int64 < float32 < float64: the result is
// whichever operand type ranks higher.
func Promote(a, b ElementType) (ElementType, error) {
	if a.rank() < 0 {
		return 0, fmt.Errorf("graph: invalid element type %v", a)
	}
	if b.rank() < 0 {
		return 0, fmt.Errorf("graph: invalid element type %v", b)
	}
	if a.rank() >= b.rank() {
		return a, nil
	}
	return b, nil
}

// PromoteTranscendental returns the type an operand is widened to before
// entering a transcendental operation (log, sin, sqrt, ...): int32 and
// int64 widen to float64; float32 and float64 pass through unchanged.
func PromoteTranscendental(t ElementType) ElementType {
	switch t {
	case Int32, Int64:
		return Float64
	default:
		return t
	}
}
