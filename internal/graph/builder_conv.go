package graph

import "github.com/flint-go/flint/pkg/ferrors"

// windowedOutputShape computes the spatial output shape for an aggregating
// window op (convolution, pooling, sliding window) given input spatial axes,
// kernel spatial axes, and per-axis stride, per spec §4.1's
// WindowOutputSize formula.
func windowedOutputShape(input, kernel Shape, stride []int) (Shape, error) {
	if len(input) != len(kernel) || len(input) != len(stride) {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "window: input/kernel/stride rank mismatch")
	}
	out := make(Shape, len(input))
	for i := range input {
		if stride[i] <= 0 {
			return nil, ferrors.New(ferrors.InvalidSelect, "window: stride must be positive")
		}
		size := WindowOutputSize(input[i], kernel[i], stride[i])
		if size <= 0 {
			return nil, ferrors.New(ferrors.IncompatibleShapes, "window: kernel does not fit within input")
		}
		out[i] = size
	}
	return out, nil
}

// Convolve applies kernel to a over its trailing len(stride) spatial axes.
// If multiKernel, kernel carries one extra leading axis selecting the
// output channel (kernel rank == len(stride) + 1, which is a's rank + 1
// when stride covers every axis of a); otherwise kernel matches a's
// spatial rank and a single channel is produced.
func Convolve(a, kernel *Node, stride []int, multiKernel bool) (*Node, error) {
	if a == nil || kernel == nil {
		return nil, ferrors.New(ferrors.InternalError, "convolve: nil predecessor")
	}
	spatialRank := len(stride)
	if spatialRank == 0 || spatialRank > a.Shape.Rank() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "convolve: stride rank must be in [1, input rank]")
	}
	kernelSpatial := kernel.Shape
	if multiKernel {
		if kernel.Shape.Rank() != spatialRank+1 {
			return nil, ferrors.New(ferrors.IllegalDimensionality, "convolve: multi-kernel rank must be stride rank + 1")
		}
		kernelSpatial = kernel.Shape[1:]
	} else if kernel.Shape.Rank() != spatialRank {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "convolve: kernel rank must equal stride rank")
	}

	inputSpatial := a.Shape[a.Shape.Rank()-spatialRank:]
	spatialOut, err := windowedOutputShape(inputSpatial, kernelSpatial, stride)
	if err != nil {
		return nil, err
	}

	t, err := Promote(a.Type, kernel.Type)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.WrongType, "convolve: type promotion failed", err)
	}

	out := make(Shape, 0, a.Shape.Rank()+1)
	out = append(out, a.Shape[:a.Shape.Rank()-spatialRank]...)
	if multiKernel {
		out = append(out, kernel.Shape[0])
	}
	out = append(out, spatialOut...)

	n := NewNode(OpConvolve, t, out, a, kernel)
	n.Aux.KernelShape = kernel.Shape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	n.Aux.MultiKernel = multiKernel
	return n, nil
}

// GradientConvolve computes the gradient of a convolution with respect to
// its input, given the upstream adjoint dy and the original kernel.
func GradientConvolve(dy, kernel, original *Node, stride []int, multiKernel bool) (*Node, error) {
	if dy == nil || kernel == nil || original == nil {
		return nil, ferrors.New(ferrors.InternalError, "gradient_convolve: nil predecessor")
	}
	n := NewNode(OpGradientConvolve, original.Type, original.Shape.Clone(), dy, kernel, original)
	n.Aux.KernelShape = kernel.Shape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	n.Aux.MultiKernel = multiKernel
	return n, nil
}

// GradientConvolveKernel computes the gradient of a convolution with
// respect to its kernel, given the upstream adjoint dy and the original
// input.
func GradientConvolveKernel(dy, original, kernel *Node, stride []int, multiKernel bool) (*Node, error) {
	if dy == nil || original == nil || kernel == nil {
		return nil, ferrors.New(ferrors.InternalError, "gradient_convolve_kernel: nil predecessor")
	}
	n := NewNode(OpGradientConvolveKernel, kernel.Type, kernel.Shape.Clone(), dy, original, kernel)
	n.Aux.KernelShape = kernel.Shape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	n.Aux.MultiKernel = multiKernel
	return n, nil
}

// SlidingWindow extracts every window of shape kernelShape at the given
// stride as a leading extra axis, without reducing it (the basis for
// pooling and custom windowed reductions).
func SlidingWindow(a *Node, kernelShape Shape, stride []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "sliding_window: nil predecessor")
	}
	spatialRank := kernelShape.Rank()
	if spatialRank == 0 || spatialRank > a.Shape.Rank() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "sliding_window: kernel rank must be in [1, input rank]")
	}
	inputSpatial := a.Shape[a.Shape.Rank()-spatialRank:]
	spatialOut, err := windowedOutputShape(inputSpatial, kernelShape, stride)
	if err != nil {
		return nil, err
	}
	out := make(Shape, 0, a.Shape.Rank()+spatialRank)
	out = append(out, a.Shape[:a.Shape.Rank()-spatialRank]...)
	out = append(out, spatialOut...)
	out = append(out, kernelShape...)

	n := NewNode(OpSlidingWindow, a.Type, out, a)
	n.Aux.KernelShape = kernelShape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	return n, nil
}

// Unslide is the adjoint of SlidingWindow: it scatter-accumulates a
// windowed tensor back into target's shape.
func Unslide(a *Node, target Shape, kernelShape Shape, stride []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "unslide: nil predecessor")
	}
	if !target.Valid() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "unslide: target shape must be non-empty with positive axes")
	}
	n := NewNode(OpUnslide, a.Type, target.Clone(), a)
	n.Aux.TargetShape = target.Clone()
	n.Aux.KernelShape = kernelShape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	return n, nil
}

func poolingOp(kind OpKind, a *Node, kernelShape Shape, stride []int) (*Node, error) {
	if a == nil {
		return nil, ferrors.New(ferrors.InternalError, "pooling: nil predecessor")
	}
	spatialRank := kernelShape.Rank()
	if spatialRank == 0 || spatialRank > a.Shape.Rank() {
		return nil, ferrors.New(ferrors.IllegalDimensionality, "pooling: kernel rank must be in [1, input rank]")
	}
	inputSpatial := a.Shape[a.Shape.Rank()-spatialRank:]
	spatialOut, err := windowedOutputShape(inputSpatial, kernelShape, stride)
	if err != nil {
		return nil, err
	}
	out := make(Shape, 0, a.Shape.Rank())
	out = append(out, a.Shape[:a.Shape.Rank()-spatialRank]...)
	out = append(out, spatialOut...)

	n := NewNode(kind, a.Type, out, a)
	n.Aux.KernelShape = kernelShape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	return n, nil
}

func PoolingSum(a *Node, kernelShape Shape, stride []int) (*Node, error) {
	return poolingOp(OpPoolingSum, a, kernelShape, stride)
}

func PoolingMax(a *Node, kernelShape Shape, stride []int) (*Node, error) {
	return poolingOp(OpPoolingMax, a, kernelShape, stride)
}

// GradientPoolingMax scatters the upstream adjoint dy back to the
// positions in original that attained each window's maximum (see
// DESIGN.md's Open Question resolution: ties scatter to the first
// maximal position encountered in row-major order).
func GradientPoolingMax(dy, original *Node, kernelShape Shape, stride []int) (*Node, error) {
	if dy == nil || original == nil {
		return nil, ferrors.New(ferrors.InternalError, "gradient_pooling_max: nil predecessor")
	}
	n := NewNode(OpGradientPoolingMax, original.Type, original.Shape.Clone(), dy, original)
	n.Aux.KernelShape = kernelShape.Clone()
	n.Aux.Stride = append([]int(nil), stride...)
	return n, nil
}

// Builder chaining wrappers.

func (bd *Builder) Convolve(a, kernel *Node, stride []int, multiKernel bool) *Node {
	if anyNil(a, kernel) {
		return nil
	}
	return bd.record(Convolve(a, kernel, stride, multiKernel))
}

func (bd *Builder) SlidingWindow(a *Node, kernelShape Shape, stride []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(SlidingWindow(a, kernelShape, stride))
}

func (bd *Builder) PoolingSum(a *Node, kernelShape Shape, stride []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(PoolingSum(a, kernelShape, stride))
}

func (bd *Builder) PoolingMax(a *Node, kernelShape Shape, stride []int) *Node {
	if anyNil(a) {
		return nil
	}
	return bd.record(PoolingMax(a, kernelShape, stride))
}
