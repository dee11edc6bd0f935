package registry

import (
	"fmt"

	"github.com/flint-go/flint/internal/graph"
)

func init() {
	register(graph.OpStore, Entry{
		Score:          0,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			sz := graph.ElementSize(node.Type)
			copy(out[from*sz:to*sz], node.Result.CPUData[from*sz:to*sz])
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = buf_%s[gid];", name, name), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("store", rt, pt, "in0")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return adjoint, nil
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpConstant, Entry{
		Score:          0,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			for i := from; i < to; i++ {
				v := ReadElement(node.ConstantValue, node.Type, 0)
				WriteElement(out, node.Type, i, v)
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = const_%s;", name, name), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("constant", rt, pt, "in0")
		},
		LocalGradient: nonDifferentiable("constant"),
		FreeAdditionalData: noFree,
	})

	register(graph.OpArange, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			for i := from; i < to; i++ {
				v := node.Aux.ArangeStart + float64(i)*node.Aux.ArangeStep
				WriteElement(out, node.Type, i, v)
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %g + gid * %g;", name, node.Aux.ArangeStart, node.Aux.ArangeStep), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("arange", rt, pt, "start + gid * step")
		},
		LocalGradient:      nonDifferentiable("arange"),
		FreeAdditionalData: noFree,
	})

	register(graph.OpRandom, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
			for i := from; i < to; i++ {
				WriteElement(out, node.Type, i, pseudoRandom(node, i))
			}
			return nil
		},
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = flint_rand(gid);", name), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("random", rt, pt, "flint_rand(gid)")
		},
		LocalGradient:      nonDifferentiable("random"),
		FreeAdditionalData: noFree,
	})
}

// pseudoRandom derives a deterministic, seedless uniform value from the
// node's identity and element index, avoiding a package-level mutable RNG
// state that would make CPU/GPU results diverge between runs.
func pseudoRandom(node *graph.Node, i int) float64 {
	h := uint64(node.ID())*2654435761 + uint64(i)*40503
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return float64(h%1_000_000) / 1_000_000
}
