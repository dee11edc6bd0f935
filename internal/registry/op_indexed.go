package registry

import (
	"fmt"

	"github.com/flint-go/flint/internal/graph"
)

func init() {
	register(graph.OpIndexRead, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a, index := views[0], views[1]
			axis := node.Aux.IndexAxis
			outStrides := node.Shape.Strides()
			aStrides := a.Shape.Strides()
			for i := from; i < to; i++ {
				coords := coordsOf(i, outStrides)
				idxPos := coords[axis]
				gathered := int(ReadElement(index.Data, index.Type, idxPos))
				aCoords := append([]int(nil), coords...)
				aCoords[axis] = gathered
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, flatOf(aCoords, aStrides)))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = index_read(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("index_read", rt, pt, "index_read(in0, in1)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			if inputIndex == 1 {
				return nil, fmt.Errorf("registry: index_read is not differentiable with respect to its index operand")
			}
			a, index := node.Predecessors[0], node.Predecessors[1]
			zero, err := graph.Constant(floatBytes(0, a.Type), a.Type, a.Shape)
			if err != nil {
				return nil, err
			}
			return graph.IndexWrite(zero, index, adjoint, node.Aux.IndexAxis)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpIndexWrite, Entry{
		Score:          2,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a, index, b := views[0], views[1], views[2]
			axis := node.Aux.IndexAxis
			outStrides := node.Shape.Strides()
			bStrides := b.Shape.Strides()

			copy(out[from*graph.ElementSize(node.Type):to*graph.ElementSize(node.Type)],
				a.Data[from*graph.ElementSize(node.Type):to*graph.ElementSize(node.Type)])

			scatterCount := index.Shape.Count()
			for k := 0; k < scatterCount; k++ {
				target := int(ReadElement(index.Data, index.Type, k))
				bCoords := coordsOf(k, bStrides)
				outCoords := append([]int(nil), bCoords...)
				outCoords[axis] = target
				oIdx := flatOf(outCoords, outStrides)
				if oIdx >= from && oIdx < to {
					WriteElement(out, node.Type, oIdx, ReadElement(b.Data, b.Type, k))
				}
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = index_write(%s, %s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1]), state.NameFor(node.Predecessors[2])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("index_write", rt, pt, "index_write(in0, in1, in2)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			index, b := node.Predecessors[1], node.Predecessors[2]
			if inputIndex == 2 {
				return graph.IndexRead(adjoint, index, node.Aux.IndexAxis)
			}
			if inputIndex == 0 {
				zero, err := graph.Constant(floatBytes(0, b.Type), b.Type, b.Shape)
				if err != nil {
					return nil, err
				}
				return graph.IndexWrite(adjoint, index, zero, node.Aux.IndexAxis)
			}
			return nil, fmt.Errorf("registry: index_write is not differentiable with respect to its index operand")
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpDropout, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			keep := 1 - node.Aux.DropoutP
			scale := 1.0
			if keep > 0 {
				scale = 1.0 / keep
			}
			for i := from; i < to; i++ {
				r := pseudoRandom(node, i)
				v := ReadElement(a.Data, a.Type, i)
				if r < node.Aux.DropoutP {
					WriteElement(out, node.Type, i, 0)
				} else {
					WriteElement(out, node.Type, i, v*scale)
				}
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = dropout(%s, %g);", name, state.NameFor(node.Predecessors[0]), node.Aux.DropoutP), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("dropout", rt, pt, "dropout(in0, p)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return nil, fmt.Errorf("registry: dropout gradient requires replaying the forward mask, not modeled as a pure graph op")
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpConvert, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			a := views[0]
			for i := from; i < to; i++ {
				WriteElement(out, node.Type, i, ReadElement(a.Data, a.Type, i))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = (%s)%s;", name, oclTypeName(node.Type), state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("convert", rt, pt, fmt.Sprintf("(%s)in0", oclTypeName(rt)))
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.Convert(adjoint, node.Predecessors[0].Type)
		},
		FreeAdditionalData: noFree,
	})
}
