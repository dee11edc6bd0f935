package registry

import (
	"fmt"
	"math"

	"github.com/flint-go/flint/internal/graph"
)

func reduceExec(init float64, combine func(acc, x float64) float64) func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	return func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
		a := views[0]
		axis := node.Aux.Axis
		inStrides := a.Shape.Strides()
		outStrides := node.Shape.Strides()
		axisSize := a.Shape[axis]
		for i := from; i < to; i++ {
			outCoords := coordsOf(i, outStrides)
			inCoords := make([]int, a.Shape.Rank())
			j := 0
			for axisIdx := range a.Shape {
				if axisIdx == axis {
					continue
				}
				inCoords[axisIdx] = outCoords[j]
				j++
			}
			acc := init
			for k := 0; k < axisSize; k++ {
				inCoords[axis] = k
				acc = combine(acc, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			WriteElement(out, node.Type, i, acc)
		}
		return nil
	}
}

func init() {
	register(graph.OpReduceSum, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     reduceExec(0, func(acc, x float64) float64 { return acc + x }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = reduce_sum(%s, %d);", name, state.NameFor(node.Predecessors[0]), node.Aux.Axis), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("reduce_sum", rt, pt, "reduce_sum(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			return expandReducedAxis(a, adjoint, node.Aux.Axis)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpReduceMul, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     reduceExec(1, func(acc, x float64) float64 { return acc * x }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = reduce_mul(%s, %d);", name, state.NameFor(node.Predecessors[0]), node.Aux.Axis), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("reduce_mul", rt, pt, "reduce_mul(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			// d(prod)/dx_k = prod / x_k; expand node (the product) back over
			// the reduced axis and divide by the original input.
			a := node.Predecessors[0]
			expandedProduct, err := expandReducedAxis(a, node, node.Aux.Axis)
			if err != nil {
				return nil, err
			}
			quotient, err := graph.Div(expandedProduct, a)
			if err != nil {
				return nil, err
			}
			expandedAdjoint, err := expandReducedAxis(a, adjoint, node.Aux.Axis)
			if err != nil {
				return nil, err
			}
			return graph.Mul(expandedAdjoint, quotient)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpReduceMin, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     reduceExec(math.MaxFloat64, math.Min),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = reduce_min(%s, %d);", name, state.NameFor(node.Predecessors[0]), node.Aux.Axis), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("reduce_min", rt, pt, "reduce_min(in0)")
		},
		LocalGradient: extremumGradient,
		FreeAdditionalData: noFree,
	})

	register(graph.OpReduceMax, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     reduceExec(-math.MaxFloat64, math.Max),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = reduce_max(%s, %d);", name, state.NameFor(node.Predecessors[0]), node.Aux.Axis), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("reduce_max", rt, pt, "reduce_max(in0)")
		},
		LocalGradient: extremumGradient,
		FreeAdditionalData: noFree,
	})

	register(graph.OpMatmul, Entry{
		Score:          8,
		ReuseParameter: alwaysFalse,
		ExecuteCPU:     matmulExec,
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = matmul(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("matmul", rt, pt, "matmul(in0, in1)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a, b := node.Predecessors[0], node.Predecessors[1]
			rankA, rankB := a.Shape.Rank(), b.Shape.Rank()
			permA := swapLastTwo(rankA)
			permB := swapLastTwo(rankB)
			if inputIndex == 0 {
				bT, err := graph.Transpose(b, permB)
				if err != nil {
					return nil, err
				}
				return graph.Matmul(adjoint, bT)
			}
			aT, err := graph.Transpose(a, permA)
			if err != nil {
				return nil, err
			}
			return graph.Matmul(aT, adjoint)
		},
		FreeAdditionalData: noFree,
	})
}

func swapLastTwo(rank int) []int {
	perm := make([]int, rank)
	for i := range perm {
		perm[i] = i
	}
	perm[rank-2], perm[rank-1] = perm[rank-1], perm[rank-2]
	return perm
}

// extremumGradient routes the adjoint to every position along the reduced
// axis that attains the reported extremum, via an equality mask against the
// broadcast result. Ties receive the full adjoint each rather than a split
// share; unlike GradientPoolingMax (which the registry's pooling entries
// implement as a dedicated scatter op), reduce_min/max have no such
// executor-side primitive, so this mask-based form is the graph-algebra
// equivalent.
func extremumGradient(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
	a := node.Predecessors[0]
	axis := node.Aux.Axis

	expanded, err := expandReducedAxis(a, node, axis)
	if err != nil {
		return nil, err
	}
	mask, err := graph.Equal(a, expanded)
	if err != nil {
		return nil, err
	}
	maskTyped, err := graph.Convert(mask, a.Type)
	if err != nil {
		return nil, err
	}
	adjExpanded, err := expandReducedAxis(a, adjoint, axis)
	if err != nil {
		return nil, err
	}
	return graph.Mul(adjExpanded, maskTyped)
}

// expandReducedAxis reinserts the axis a reduceOp dropped, reconstructing a
// tensor shaped like a from a value shaped like the reduce's output
// (reduced). When a had rank 1, reduceOp's forward pass collapsed what would
// have been a rank-0 result to the canonical Shape{1} scalar representation
// instead of truly dropping the axis; reduced already carries that same
// Shape{1}, so reinserting the axis there means resizing the existing axis
// (Repeat) rather than inserting a new one (Expand), which would otherwise
// leave an extra dimension behind.
func expandReducedAxis(a, reduced *graph.Node, axis int) (*graph.Node, error) {
	count := a.Shape[axis]
	if a.Shape.Rank() == 1 {
		counts := make([]int, reduced.Shape.Rank())
		for i := range counts {
			counts[i] = 1
		}
		counts[axis] = count
		return graph.Repeat(reduced, counts)
	}
	return graph.Expand(reduced, axis, count)
}

func matmulExec(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a, b := views[0], views[1]
	rank := node.Shape.Rank()
	k := a.Shape[a.Shape.Rank()-1]

	batchShape := node.Shape[:rank-2]
	outStrides := node.Shape.Strides()

	for i := from; i < to; i++ {
		coords := coordsOf(i, outStrides)
		batch := coords[:rank-2]
		row := coords[rank-2]
		col := coords[rank-1]

		aBatch := broadcastBatchCoords(batch, batchShape, a.Shape[:maxInt(0, a.Shape.Rank()-2)])
		bBatch := broadcastBatchCoords(batch, batchShape, b.Shape[:maxInt(0, b.Shape.Rank()-2)])

		aStrides := a.Shape.Strides()
		bStrides := b.Shape.Strides()

		acc := 0.0
		for kk := 0; kk < k; kk++ {
			aCoords := append(append([]int(nil), aBatch...), row, kk)
			bCoords := append(append([]int(nil), bBatch...), kk, col)
			acc += ReadElement(a.Data, a.Type, flatOf(aCoords, aStrides)) * ReadElement(b.Data, b.Type, flatOf(bCoords, bStrides))
		}
		WriteElement(out, node.Type, i, acc)
	}
	return nil
}

func broadcastBatchCoords(outBatch, outBatchShape, predBatchShape []int) []int {
	offset := len(outBatchShape) - len(predBatchShape)
	coords := make([]int, len(predBatchShape))
	for i := range coords {
		c := outBatch[offset+i]
		if predBatchShape[i] == 1 {
			c = 0
		}
		coords[i] = c
	}
	return coords
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
