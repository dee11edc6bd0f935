package registry

import (
	"fmt"

	"github.com/flint-go/flint/internal/graph"
)

func coordsOf(flat int, strides []int) []int {
	coords := make([]int, len(strides))
	rem := flat
	for i, s := range strides {
		coords[i] = rem / s
		rem %= s
	}
	return coords
}

func flatOf(coords []int, strides []int) int {
	idx := 0
	for i, c := range coords {
		idx += c * strides[i]
	}
	return idx
}

func copyElements(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	a := views[0]
	for i := from; i < to; i++ {
		WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, i))
	}
	return nil
}

func init() {
	register(graph.OpReshape, Entry{
		Score:              0,
		ReuseParameter:     func(*graph.Node, int) bool { return true },
		ExecuteCPU:         copyElements,
		GenerateOCLLazy:    func(node *graph.Node, name string, state *CodegenState) (string, error) { return fmt.Sprintf("%s = %s;", name, state.NameFor(node.Predecessors[0])), nil },
		GenerateOCLEager:   func(rt graph.ElementType, pt []graph.ElementType) (string, error) { return eagerKernel("reshape", rt, pt, "in0") },
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.Reshape(adjoint, node.Predecessors[0].Shape)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpFlatten, Entry{
		Score:              0,
		ReuseParameter:     func(*graph.Node, int) bool { return true },
		ExecuteCPU:         copyElements,
		GenerateOCLLazy:    func(node *graph.Node, name string, state *CodegenState) (string, error) { return fmt.Sprintf("%s = %s;", name, state.NameFor(node.Predecessors[0])), nil },
		GenerateOCLEager:   func(rt graph.ElementType, pt []graph.ElementType) (string, error) { return eagerKernel("flatten", rt, pt, "in0") },
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.Reshape(adjoint, node.Predecessors[0].Shape)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpTranspose, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			outStrides := node.Shape.Strides()
			inStrides := a.Shape.Strides()
			perm := node.Aux.Axes
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				inCoords := make([]int, len(perm))
				for axis, srcAxis := range perm {
					inCoords[srcAxis] = outCoords[axis]
				}
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s[transpose_index(gid)];", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("transpose", rt, pt, "in0[transpose_index(gid)]")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			inversePerm := make([]int, len(node.Aux.Axes))
			for i, p := range node.Aux.Axes {
				inversePerm[p] = i
			}
			return graph.Transpose(adjoint, inversePerm)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpRepeat, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			outStrides := node.Shape.Strides()
			inStrides := a.Shape.Strides()
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				inCoords := make([]int, len(outCoords))
				for axis := range outCoords {
					inCoords[axis] = outCoords[axis] % a.Shape[axis]
				}
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s[repeat_index(gid)];", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("repeat", rt, pt, "in0[repeat_index(gid)]")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			acc := adjoint
			for axis, count := range node.Aux.Axes {
				if count <= 1 {
					continue
				}
				// Split the tiled axis into (count, originalSize) and sum
				// over the tile-count dimension, undoing the repeat.
				split := make(graph.Shape, 0, acc.Shape.Rank()+1)
				split = append(split, acc.Shape[:axis]...)
				split = append(split, count, a.Shape[axis])
				split = append(split, acc.Shape[axis+1:]...)
				reshaped, err := graph.Reshape(acc, split)
				if err != nil {
					return nil, err
				}
				reduced, err := graph.ReduceSum(reshaped, axis)
				if err != nil {
					return nil, err
				}
				acc = reduced
			}
			return acc, nil
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpSlice, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			outStrides := node.Shape.Strides()
			inStrides := a.Shape.Strides()
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				inCoords := make([]int, len(outCoords))
				for axis := range outCoords {
					inCoords[axis] = node.Aux.SliceStart[axis] + outCoords[axis]*node.Aux.SliceStep[axis]
				}
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s[slice_index(gid)];", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("slice", rt, pt, "in0[slice_index(gid)]")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			return graph.Extend(adjoint, a.Shape, node.Aux.SliceStart, node.Aux.SliceStep)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpExtend, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			outStrides := node.Shape.Strides()
			inStrides := a.Shape.Strides()
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				inCoords := make([]int, len(outCoords))
				inBounds := true
				for axis := range outCoords {
					rel := outCoords[axis] - node.Aux.ExtendOffset[axis]
					stride := node.Aux.ExtendStride[axis]
					if rel < 0 || rel%stride != 0 {
						inBounds = false
						break
					}
					q := rel / stride
					if q >= a.Shape[axis] {
						inBounds = false
						break
					}
					inCoords[axis] = q
				}
				if !inBounds {
					WriteElement(out, node.Type, i, 0)
					continue
				}
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = extend_lookup(%s, gid);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("extend", rt, pt, "extend_lookup(in0, gid)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a := node.Predecessors[0]
			end := make([]int, a.Shape.Rank())
			for axis := range end {
				end[axis] = node.Aux.ExtendOffset[axis] + (a.Shape[axis]-1)*node.Aux.ExtendStride[axis] + 1
			}
			return graph.Slice(adjoint, node.Aux.ExtendOffset, end, node.Aux.ExtendStride)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpConcat, Entry{
		Score:          0,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a, b := views[0], views[1]
			axis := node.Aux.Axis
			outStrides := node.Shape.Strides()
			aStrides := a.Shape.Strides()
			bStrides := b.Shape.Strides()
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				if outCoords[axis] < a.Shape[axis] {
					WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(outCoords, aStrides)))
				} else {
					bCoords := append([]int(nil), outCoords...)
					bCoords[axis] -= a.Shape[axis]
					WriteElement(out, node.Type, i, ReadElement(b.Data, b.Type, flatOf(bCoords, bStrides)))
				}
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = concat_lookup(%s, %s, gid);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("concat", rt, pt, "concat_lookup(in0, in1, gid)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a, b := node.Predecessors[0], node.Predecessors[1]
			axis := node.Aux.Axis
			rank := node.Shape.Rank()
			start := make([]int, rank)
			end := append(graph.Shape(nil), node.Shape...)
			step := make([]int, rank)
			for i := range step {
				step[i] = 1
			}
			if inputIndex == 0 {
				end[axis] = a.Shape[axis]
				return graph.Slice(adjoint, start, end, step)
			}
			start[axis] = a.Shape[axis]
			end[axis] = a.Shape[axis] + b.Shape[axis]
			return graph.Slice(adjoint, start, end, step)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpExpand, Entry{
		Score:          0,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			axis := node.Aux.Axis
			outStrides := node.Shape.Strides()
			inStrides := a.Shape.Strides()
			for i := from; i < to; i++ {
				outCoords := coordsOf(i, outStrides)
				inCoords := make([]int, 0, len(outCoords)-1)
				for idx, c := range outCoords {
					if idx == axis {
						continue
					}
					inCoords = append(inCoords, c)
				}
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(inCoords, inStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s[expand_index(gid)];", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("expand", rt, pt, "in0[expand_index(gid)]")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.ReduceSum(adjoint, node.Aux.Axis)
		},
		FreeAdditionalData: noFree,
	})
}
