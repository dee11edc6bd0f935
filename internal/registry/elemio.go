// Package registry implements the operation dispatch table: one entry per
// graph.OpKind holding the per-operation cost score, buffer-reuse rule, CPU
// kernel, lazy/eager GPU codegen, local gradient rule, and auxiliary-data
// cleanup. This is a plain table of function values rather than a virtual
// hierarchy, so adding an operation means adding one file, never touching a
// type switch scattered across the codebase.
package registry

import (
	"encoding/binary"
	"math"

	"github.com/flint-go/flint/internal/graph"
)

// ReadElement decodes the element at idx (element-indexed, not byte-indexed)
// from buf, which holds t-typed elements in host-native byte order.
func ReadElement(buf []byte, t graph.ElementType, idx int) float64 {
	off := idx * graph.ElementSize(t)
	switch t {
	case graph.Int32:
		return float64(int32(binary.NativeEndian.Uint32(buf[off:])))
	case graph.Int64:
		return float64(int64(binary.NativeEndian.Uint64(buf[off:])))
	case graph.Float32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(buf[off:])))
	case graph.Float64:
		return math.Float64frombits(binary.NativeEndian.Uint64(buf[off:]))
	default:
		return 0
	}
}

// WriteElement encodes v into buf at idx as a t-typed element.
func WriteElement(buf []byte, t graph.ElementType, idx int, v float64) {
	off := idx * graph.ElementSize(t)
	switch t {
	case graph.Int32:
		binary.NativeEndian.PutUint32(buf[off:], uint32(int32(v)))
	case graph.Int64:
		binary.NativeEndian.PutUint64(buf[off:], uint64(int64(v)))
	case graph.Float32:
		binary.NativeEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
	case graph.Float64:
		binary.NativeEndian.PutUint64(buf[off:], math.Float64bits(v))
	}
}

// NewBuffer allocates a zeroed host buffer for count elements of type t.
func NewBuffer(t graph.ElementType, count int) []byte {
	return make([]byte, count*graph.ElementSize(t))
}

// broadcastIndex maps a flat index into out (shaped outShape) to the flat
// index into a predecessor of shape predShape under the given alignment
// mode, per spec §4.1. predShape's axes align against outShape's trailing
// axes (ModeForward) or leading axes (ModeInverse); any predecessor axis of
// size 1 is held fixed (classic broadcast-over-1).
func broadcastIndex(flat int, outShape, predShape graph.Shape, mode graph.BroadcastMode) int {
	outStrides := outShape.Strides()
	coords := make([]int, len(outShape))
	rem := flat
	for i, s := range outStrides {
		coords[i] = rem / s
		rem %= s
	}

	offset := len(outShape) - len(predShape)
	if mode == graph.ModeInverse {
		offset = 0
	}

	predStrides := predShape.Strides()
	idx := 0
	for i := 0; i < len(predShape); i++ {
		c := coords[offset+i]
		if predShape[i] == 1 {
			c = 0
		}
		idx += c * predStrides[i]
	}
	return idx
}
