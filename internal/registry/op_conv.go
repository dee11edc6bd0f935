package registry

import (
	"fmt"
	"math"

	"github.com/flint-go/flint/internal/graph"
)

func init() {
	register(graph.OpConvolve, Entry{
		Score:          16,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     convolveExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = convolve(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("convolve", rt, pt, "convolve(in0, in1)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a, kernel := node.Predecessors[0], node.Predecessors[1]
			if inputIndex == 0 {
				return graph.GradientConvolve(adjoint, kernel, a, node.Aux.Stride, node.Aux.MultiKernel)
			}
			return graph.GradientConvolveKernel(adjoint, a, kernel, node.Aux.Stride, node.Aux.MultiKernel)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpGradientConvolve, Entry{
		Score:          16,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     gradientConvolveInputExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = gradient_convolve(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("gradient_convolve", rt, pt, "gradient_convolve(in0, in1)")
		},
		LocalGradient:      nonDifferentiable("gradient_convolve (second-order)"),
		FreeAdditionalData: noFree,
	})

	register(graph.OpGradientConvolveKernel, Entry{
		Score:          16,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     gradientConvolveKernelExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = gradient_convolve_kernel(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("gradient_convolve_kernel", rt, pt, "gradient_convolve_kernel(in0, in1)")
		},
		LocalGradient:      nonDifferentiable("gradient_convolve_kernel (second-order)"),
		FreeAdditionalData: noFree,
	})

	register(graph.OpSlidingWindow, Entry{
		Score:          6,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     slidingWindowExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = sliding_window(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("sliding_window", rt, pt, "sliding_window(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			return graph.Unslide(adjoint, a.Shape, node.Aux.KernelShape, node.Aux.Stride)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpUnslide, Entry{
		Score:          6,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     unslideExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = unslide(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("unslide", rt, pt, "unslide(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.SlidingWindow(adjoint, node.Aux.KernelShape, node.Aux.Stride)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpPoolingSum, Entry{
		Score:          6,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     poolingSumExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = pooling_sum(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("pooling_sum", rt, pt, "pooling_sum(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			return graph.Unslide(adjoint, a.Shape, node.Aux.KernelShape, node.Aux.Stride)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpPoolingMax, Entry{
		Score:          6,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     poolingMaxExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = pooling_max(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("pooling_max", rt, pt, "pooling_max(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			return graph.GradientPoolingMax(adjoint, a, node.Aux.KernelShape, node.Aux.Stride)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpGradientPoolingMax, Entry{
		Score:          6,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     gradientPoolingMaxExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = gradient_pooling_max(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("gradient_pooling_max", rt, pt, "gradient_pooling_max(in0, in1)")
		},
		LocalGradient:      nonDifferentiable("gradient_pooling_max (second-order)"),
		FreeAdditionalData: noFree,
	})
}

// spatialLayout decomposes node/input shapes into (batch axes, spatial
// axes) given the known spatial rank, shared by every windowed op's
// executor.
func spatialLayout(shape graph.Shape, spatialRank int) (batch, spatial graph.Shape) {
	cut := shape.Rank() - spatialRank
	return shape[:cut], shape[cut:]
}

func convolveExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a, kernel := views[0], views[1]
	stride := node.Aux.Stride
	spatialRank := len(stride)
	multi := node.Aux.MultiKernel

	batchLen := node.Shape.Rank() - spatialRank - boolToInt(multi)
	outStrides := node.Shape.Strides()
	aStrides := a.Shape.Strides()
	kStrides := kernel.Shape.Strides()

	kernelSpatial := kernel.Shape
	if multi {
		kernelSpatial = kernel.Shape[1:]
	}

	for i := from; i < to; i++ {
		coords := coordsOf(i, outStrides)
		var channel int
		batchCoords := coords[:batchLen]
		spatialStart := batchLen
		if multi {
			channel = coords[batchLen]
			spatialStart = batchLen + 1
		}
		outSpatialCoords := coords[spatialStart:]

		acc := 0.0
		total := 1
		for _, d := range kernelSpatial {
			total *= d
		}
		for lin := 0; lin < total; lin++ {
			kCoords := unflattenWithShape(lin, kernelSpatial)
			aCoords := make([]int, 0, a.Shape.Rank())
			aCoords = append(aCoords, batchCoords...)
			for d := range kCoords {
				aCoords = append(aCoords, outSpatialCoords[d]*stride[d]+kCoords[d])
			}
			var fullKCoords []int
			if multi {
				fullKCoords = append([]int{channel}, kCoords...)
			} else {
				fullKCoords = kCoords
			}
			acc += ReadElement(a.Data, a.Type, flatOf(aCoords, aStrides)) * ReadElement(kernel.Data, kernel.Type, flatOf(fullKCoords, kStrides))
		}
		WriteElement(out, node.Type, i, acc)
	}
	return nil
}

func unflattenWithShape(flat int, shape graph.Shape) []int {
	coords := make([]int, len(shape))
	rem := flat
	for i := len(shape) - 1; i >= 0; i-- {
		coords[i] = rem % shape[i]
		rem /= shape[i]
	}
	return coords
}

// gradientConvolveInputExec scatter-accumulates the upstream adjoint
// through the kernel back into the shape of the original input, the
// transpose-convolution form of the forward pass.
func gradientConvolveInputExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	dy, kernel := views[0], views[1]
	stride := node.Aux.Stride
	spatialRank := len(stride)
	multi := node.Aux.MultiKernel

	for i := from; i < to; i++ {
		WriteElement(out, node.Type, i, 0)
	}

	kernelSpatial := kernel.Shape
	if multi {
		kernelSpatial = kernel.Shape[1:]
	}

	dyStrides := dy.Shape.Strides()
	kStrides := kernel.Shape.Strides()
	outStrides := node.Shape.Strides()

	batchLen := node.Shape.Rank() - spatialRank
	total := dy.Shape.Count()
	for dyFlat := 0; dyFlat < total; dyFlat++ {
		dyCoords := coordsOf(dyFlat, dyStrides)
		batchCoords := dyCoords[:batchLen]
		spatialIdx := batchLen
		channel := 0
		if multi {
			channel = dyCoords[batchLen]
			spatialIdx = batchLen + 1
		}
		outSpatialCoords := dyCoords[spatialIdx:]

		kTotal := 1
		for _, d := range kernelSpatial {
			kTotal *= d
		}
		for lin := 0; lin < kTotal; lin++ {
			kCoords := unflattenWithShape(lin, kernelSpatial)
			outCoords := make([]int, 0, node.Shape.Rank())
			outCoords = append(outCoords, batchCoords...)
			valid := true
			for d := range kCoords {
				pos := outSpatialCoords[d]*stride[d] + kCoords[d]
				if pos >= node.Shape[batchLen+d] {
					valid = false
					break
				}
				outCoords = append(outCoords, pos)
			}
			if !valid {
				continue
			}
			var fullKCoords []int
			if multi {
				fullKCoords = append([]int{channel}, kCoords...)
			} else {
				fullKCoords = kCoords
			}
			contribution := ReadElement(dy.Data, dy.Type, dyFlat) * ReadElement(kernel.Data, kernel.Type, flatOf(fullKCoords, kStrides))
			oIdx := flatOf(outCoords, outStrides)
			if oIdx >= from && oIdx < to {
				WriteElement(out, node.Type, oIdx, ReadElement(out, node.Type, oIdx)+contribution)
			}
		}
	}
	return nil
}

// gradientConvolveKernelExec accumulates the outer product of the upstream
// adjoint and the original input into the kernel's gradient.
func gradientConvolveKernelExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	dy, original := views[0], views[1]
	stride := node.Aux.Stride
	spatialRank := len(stride)
	multi := node.Aux.MultiKernel

	for i := from; i < to; i++ {
		WriteElement(out, node.Type, i, 0)
	}

	kernelSpatial := node.Shape
	if multi {
		kernelSpatial = node.Shape[1:]
	}

	oBatch, _ := spatialLayout(original.Shape, spatialRank)
	batchLen := len(oBatch)

	dyStrides := dy.Shape.Strides()
	oStrides := original.Shape.Strides()
	kStrides := node.Shape.Strides()

	kTotal := 1
	for _, d := range kernelSpatial {
		kTotal *= d
	}
	dyTotal := dy.Shape.Count()

	for dyFlat := 0; dyFlat < dyTotal; dyFlat++ {
		dyCoords := coordsOf(dyFlat, dyStrides)
		batchCoords := dyCoords[:batchLen]
		spatialIdx := batchLen
		channel := 0
		if multi {
			channel = dyCoords[batchLen]
			spatialIdx = batchLen + 1
		}
		outSpatialCoords := dyCoords[spatialIdx:]
		dyVal := ReadElement(dy.Data, dy.Type, dyFlat)

		for lin := 0; lin < kTotal; lin++ {
			kCoords := unflattenWithShape(lin, kernelSpatial)
			oCoords := make([]int, 0, original.Shape.Rank())
			oCoords = append(oCoords, batchCoords...)
			for d := range kCoords {
				oCoords = append(oCoords, outSpatialCoords[d]*stride[d]+kCoords[d])
			}
			var fullKCoords []int
			if multi {
				fullKCoords = append([]int{channel}, kCoords...)
			} else {
				fullKCoords = kCoords
			}
			kIdx := flatOf(fullKCoords, kStrides)
			if kIdx < from || kIdx >= to {
				continue
			}
			contribution := dyVal * ReadElement(original.Data, original.Type, flatOf(oCoords, oStrides))
			WriteElement(out, node.Type, kIdx, ReadElement(out, node.Type, kIdx)+contribution)
		}
	}
	return nil
}

func slidingWindowExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a := views[0]
	stride := node.Aux.Stride
	spatialRank := len(stride)

	outStrides := node.Shape.Strides()
	aStrides := a.Shape.Strides()
	batchLen := a.Shape.Rank() - spatialRank

	for i := from; i < to; i++ {
		coords := coordsOf(i, outStrides)
		batchCoords := coords[:batchLen]
		windowCoords := coords[batchLen : batchLen+spatialRank]
		kCoords := coords[batchLen+spatialRank:]

		aCoords := make([]int, 0, a.Shape.Rank())
		aCoords = append(aCoords, batchCoords...)
		for d := 0; d < spatialRank; d++ {
			aCoords = append(aCoords, windowCoords[d]*stride[d]+kCoords[d])
		}
		WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(aCoords, aStrides)))
	}
	return nil
}

func unslideExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a := views[0]
	stride := node.Aux.Stride
	spatialRank := len(stride)
	batchLen := node.Shape.Rank() - spatialRank

	for i := from; i < to; i++ {
		WriteElement(out, node.Type, i, 0)
	}

	outStrides := node.Shape.Strides()
	aStrides := a.Shape.Strides()

	total := a.Shape.Count()
	for aFlat := 0; aFlat < total; aFlat++ {
		coords := coordsOf(aFlat, aStrides)
		batchCoords := coords[:batchLen]
		windowCoords := coords[batchLen : batchLen+spatialRank]
		kCoords := coords[batchLen+spatialRank:]

		outCoords := make([]int, 0, node.Shape.Rank())
		outCoords = append(outCoords, batchCoords...)
		valid := true
		for d := 0; d < spatialRank; d++ {
			pos := windowCoords[d]*stride[d] + kCoords[d]
			if pos >= node.Shape[batchLen+d] {
				valid = false
				break
			}
			outCoords = append(outCoords, pos)
		}
		if !valid {
			continue
		}
		oIdx := flatOf(outCoords, outStrides)
		if oIdx < from || oIdx >= to {
			continue
		}
		val := ReadElement(a.Data, a.Type, aFlat)
		WriteElement(out, node.Type, oIdx, ReadElement(out, node.Type, oIdx)+val)
	}
	return nil
}

func poolingWindowValues(a CPUView, node *graph.Node, outCoords []int, stride []int, kernelShape graph.Shape, spatialRank, batchLen int) []float64 {
	aStrides := a.Shape.Strides()
	kTotal := 1
	for _, d := range kernelShape {
		kTotal *= d
	}
	vals := make([]float64, 0, kTotal)
	for lin := 0; lin < kTotal; lin++ {
		kCoords := unflattenWithShape(lin, kernelShape)
		aCoords := make([]int, 0, a.Shape.Rank())
		aCoords = append(aCoords, outCoords[:batchLen]...)
		for d := 0; d < spatialRank; d++ {
			aCoords = append(aCoords, outCoords[batchLen+d]*stride[d]+kCoords[d])
		}
		vals = append(vals, ReadElement(a.Data, a.Type, flatOf(aCoords, aStrides)))
	}
	return vals
}

func poolingSumExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a := views[0]
	stride := node.Aux.Stride
	kernelShape := node.Aux.KernelShape
	spatialRank := len(stride)
	batchLen := node.Shape.Rank() - spatialRank
	outStrides := node.Shape.Strides()

	for i := from; i < to; i++ {
		coords := coordsOf(i, outStrides)
		vals := poolingWindowValues(a, node, coords, stride, kernelShape, spatialRank, batchLen)
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		WriteElement(out, node.Type, i, sum)
	}
	return nil
}

func poolingMaxExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a := views[0]
	stride := node.Aux.Stride
	kernelShape := node.Aux.KernelShape
	spatialRank := len(stride)
	batchLen := node.Shape.Rank() - spatialRank
	outStrides := node.Shape.Strides()

	for i := from; i < to; i++ {
		coords := coordsOf(i, outStrides)
		vals := poolingWindowValues(a, node, coords, stride, kernelShape, spatialRank, batchLen)
		m := -math.MaxFloat64
		for _, v := range vals {
			if v > m {
				m = v
			}
		}
		WriteElement(out, node.Type, i, m)
	}
	return nil
}

// gradientPoolingMaxExec scatters each pooled window's adjoint to the first
// (row-major) input position that attained its maximum.
func gradientPoolingMaxExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	dy, original := views[0], views[1]
	stride := node.Aux.Stride
	kernelShape := node.Aux.KernelShape
	spatialRank := len(stride)
	batchLen := node.Shape.Rank() - spatialRank

	for i := from; i < to; i++ {
		WriteElement(out, node.Type, i, 0)
	}

	dyStrides := dy.Shape.Strides()
	oStrides := original.Shape.Strides()
	outStrides := node.Shape.Strides()

	kTotal := 1
	for _, d := range kernelShape {
		kTotal *= d
	}

	dyTotal := dy.Shape.Count()
	for dyFlat := 0; dyFlat < dyTotal; dyFlat++ {
		dyCoords := coordsOf(dyFlat, dyStrides)
		batchCoords := dyCoords[:batchLen]
		windowCoords := dyCoords[batchLen:]

		bestVal := -math.MaxFloat64
		var bestCoords []int
		for lin := 0; lin < kTotal; lin++ {
			kCoords := unflattenWithShape(lin, kernelShape)
			oCoords := make([]int, 0, original.Shape.Rank())
			oCoords = append(oCoords, batchCoords...)
			for d := 0; d < spatialRank; d++ {
				oCoords = append(oCoords, windowCoords[d]*stride[d]+kCoords[d])
			}
			v := ReadElement(original.Data, original.Type, flatOf(oCoords, oStrides))
			if v > bestVal {
				bestVal = v
				bestCoords = oCoords
			}
		}
		oIdx := flatOf(bestCoords, outStrides)
		if oIdx >= from && oIdx < to {
			WriteElement(out, node.Type, oIdx, ReadElement(out, node.Type, oIdx)+ReadElement(dy.Data, dy.Type, dyFlat))
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
