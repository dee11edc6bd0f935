package registry

import (
	"fmt"
	"math"

	"github.com/flint-go/flint/internal/graph"
)

func elementwiseBinary(fn func(x, y float64) float64) func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	return func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
		a, b := views[0], views[1]
		for i := from; i < to; i++ {
			ai := broadcastIndex(i, node.Shape, a.Shape, node.BroadcastMode)
			bi := broadcastIndex(i, node.Shape, b.Shape, node.BroadcastMode)
			x := ReadElement(a.Data, a.Type, ai)
			y := ReadElement(b.Data, b.Type, bi)
			WriteElement(out, node.Type, i, fn(x, y))
		}
		return nil
	}
}

func elementwiseUnary(fn func(x float64) float64) func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	return func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
		a := views[0]
		for i := from; i < to; i++ {
			x := ReadElement(a.Data, a.Type, i)
			WriteElement(out, node.Type, i, fn(x))
		}
		return nil
	}
}

func comparison(fn func(x, y float64) bool) func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
	return func(node *graph.Node, views []CPUView, out []byte, from, to int) error {
		a, b := views[0], views[1]
		for i := from; i < to; i++ {
			ai := broadcastIndex(i, node.Shape, a.Shape, node.BroadcastMode)
			bi := broadcastIndex(i, node.Shape, b.Shape, node.BroadcastMode)
			x := ReadElement(a.Data, a.Type, ai)
			y := ReadElement(b.Data, b.Type, bi)
			v := float64(0)
			if fn(x, y) {
				v = 1
			}
			WriteElement(out, graph.Int32, i, v)
		}
		return nil
	}
}

// matchingShapeType is the conservative ReuseParameter test shared by every
// element-wise binary op: reuse is only offered when the predecessor's own
// shape and type already equal the output's (so no broadcast expansion or
// type widening would corrupt the stolen buffer).
func matchingShapeType(node *graph.Node, inputIndex int) bool {
	p := node.Predecessors[inputIndex]
	return p.Shape.Equal(node.Shape) && p.Type == node.Type
}

func alwaysFalse(*graph.Node, int) bool { return false }

func eagerKernel(name string, resultType graph.ElementType, paramTypes []graph.ElementType, expr string) (string, error) {
	sig := name + "("
	for i, t := range paramTypes {
		if i > 0 {
			sig += ", "
		}
		sig += fmt.Sprintf("%s in%d", oclTypeName(t), i)
	}
	sig += fmt.Sprintf(") -> %s", oclTypeName(resultType))
	return fmt.Sprintf("kernel %s { return %s; }", sig, expr), nil
}

// OCLTypeName returns the kernel-source type name for t, for callers outside
// the registry (internal/codegen's eager-mode signature assembly) that need
// the same naming scheme the registry's own eager kernels use.
func OCLTypeName(t graph.ElementType) string { return oclTypeName(t) }

func oclTypeName(t graph.ElementType) string {
	switch t {
	case graph.Int32:
		return "int"
	case graph.Int64:
		return "long"
	case graph.Float32:
		return "float"
	case graph.Float64:
		return "double"
	default:
		return "invalid"
	}
}

func init() {
	register(graph.OpAdd, Entry{
		Score:          1,
		ReuseParameter: matchingShapeType,
		ExecuteCPU:     elementwiseBinary(func(x, y float64) float64 { return x + y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s + %s;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("add", rt, pt, "in0 + in1")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return adjoint, nil
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpSub, Entry{
		Score:          1,
		ReuseParameter: matchingShapeType,
		ExecuteCPU:     elementwiseBinary(func(x, y float64) float64 { return x - y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s - %s;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("sub", rt, pt, "in0 - in1")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			if inputIndex == 0 {
				return adjoint, nil
			}
			return graph.Neg(adjoint)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpMul, Entry{
		Score:          1,
		ReuseParameter: matchingShapeType,
		ExecuteCPU:     elementwiseBinary(func(x, y float64) float64 { return x * y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s * %s;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("mul", rt, pt, "in0 * in1")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			other := node.Predecessors[1-inputIndex]
			return graph.Mul(adjoint, other)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpDiv, Entry{
		Score:          2,
		ReuseParameter: matchingShapeType,
		ExecuteCPU:     elementwiseBinary(func(x, y float64) float64 { return x / y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s / %s;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("div", rt, pt, "in0 / in1")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a, b := node.Predecessors[0], node.Predecessors[1]
			if inputIndex == 0 {
				return graph.Div(adjoint, b)
			}
			num, err := graph.Mul(adjoint, a)
			if err != nil {
				return nil, err
			}
			denom, err := graph.Mul(b, b)
			if err != nil {
				return nil, err
			}
			quot, err := graph.Div(num, denom)
			if err != nil {
				return nil, err
			}
			return graph.Neg(quot)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpPow, Entry{
		Score:          3,
		ReuseParameter: matchingShapeType,
		ExecuteCPU:     elementwiseBinary(math.Pow),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = pow(%s, %s);", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("pow", rt, pt, "pow(in0, in1)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			a, b := node.Predecessors[0], node.Predecessors[1]
			if inputIndex == 0 {
				// d/da a^b = b * a^(b-1)
				one, err := graph.Constant(oneBytes(b.Type), b.Type, graph.Shape{1})
				if err != nil {
					return nil, err
				}
				bMinus1, err := graph.Sub(b, one)
				if err != nil {
					return nil, err
				}
				aPow, err := graph.Pow(a, bMinus1)
				if err != nil {
					return nil, err
				}
				scaled, err := graph.Mul(b, aPow)
				if err != nil {
					return nil, err
				}
				return graph.Mul(adjoint, scaled)
			}
			// d/db a^b = a^b * ln(a)
			lnA, err := graph.Log(a)
			if err != nil {
				return nil, err
			}
			scaled, err := graph.Mul(node, lnA)
			if err != nil {
				return nil, err
			}
			return graph.Mul(adjoint, scaled)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpNeg, Entry{
		Score:          1,
		ReuseParameter: func(node *graph.Node, _ int) bool { return matchingShapeType(node, 0) },
		ExecuteCPU:     elementwiseUnary(func(x float64) float64 { return -x }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = -%s;", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("neg", rt, pt, "-in0")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return graph.Neg(adjoint)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpAbs, Entry{
		Score:          1,
		ReuseParameter: func(node *graph.Node, _ int) bool { return matchingShapeType(node, 0) },
		ExecuteCPU:     elementwiseUnary(math.Abs),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = fabs(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("abs", rt, pt, "fabs(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			sign, err := graph.Sign(node.Predecessors[0])
			if err != nil {
				return nil, err
			}
			return graph.Mul(adjoint, sign)
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpSign, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: elementwiseUnary(func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			default:
				return 0
			}
		}),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = sign(%s);", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("sign", rt, pt, "sign(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			zero, err := graph.Constant(floatBytes(0, node.Type), node.Type, graph.Shape{1})
			if err != nil {
				return nil, err
			}
			return graph.Mul(adjoint, zero) // sign's derivative is 0 a.e.
		},
		FreeAdditionalData: noFree,
	})

	register(graph.OpEven, Entry{
		Score:          1,
		ReuseParameter: alwaysFalse,
		ExecuteCPU: elementwiseUnary(func(x float64) float64 {
			if int64(x)%2 == 0 {
				return 1
			}
			return 0
		}),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = (((long)%s) %% 2 == 0) ? 1 : 0;", name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel("even", rt, pt, "(((long)in0) % 2 == 0) ? 1 : 0")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return nil, fmt.Errorf("registry: even is not differentiable")
		},
		FreeAdditionalData: noFree,
	})

	registerTranscendental(graph.OpLog, "log", math.Log, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		return graph.Div(adjoint, a)
	})
	registerTranscendental(graph.OpLog2, "log2", math.Log2, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		ln2 := math.Ln2
		scale, err := graph.Constant(floatBytes(ln2, a.Type), a.Type, graph.Shape{1})
		if err != nil {
			return nil, err
		}
		denom, err := graph.Mul(a, scale)
		if err != nil {
			return nil, err
		}
		return graph.Div(adjoint, denom)
	})
	registerTranscendental(graph.OpLog10, "log10", math.Log10, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		ln10 := math.Log(10)
		scale, err := graph.Constant(floatBytes(ln10, a.Type), a.Type, graph.Shape{1})
		if err != nil {
			return nil, err
		}
		denom, err := graph.Mul(a, scale)
		if err != nil {
			return nil, err
		}
		return graph.Div(adjoint, denom)
	})
	registerTranscendental(graph.OpExp, "exp", math.Exp, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		expA, err := graph.Exp(a)
		if err != nil {
			return nil, err
		}
		return graph.Mul(adjoint, expA)
	})
	registerTranscendental(graph.OpSqrt, "sqrt", math.Sqrt, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		sqrtA, err := graph.Sqrt(a)
		if err != nil {
			return nil, err
		}
		two, err := graph.Constant(floatBytes(2, a.Type), a.Type, graph.Shape{1})
		if err != nil {
			return nil, err
		}
		denom, err := graph.Mul(two, sqrtA)
		if err != nil {
			return nil, err
		}
		return graph.Div(adjoint, denom)
	})
	registerTranscendental(graph.OpSin, "sin", math.Sin, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		cosA, err := graph.Cos(a)
		if err != nil {
			return nil, err
		}
		return graph.Mul(adjoint, cosA)
	})
	registerTranscendental(graph.OpCos, "cos", math.Cos, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		sinA, err := graph.Sin(a)
		if err != nil {
			return nil, err
		}
		neg, err := graph.Neg(sinA)
		if err != nil {
			return nil, err
		}
		return graph.Mul(adjoint, neg)
	})
	registerTranscendental(graph.OpTan, "tan", math.Tan, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		cosA, err := graph.Cos(a)
		if err != nil {
			return nil, err
		}
		cos2, err := graph.Mul(cosA, cosA)
		if err != nil {
			return nil, err
		}
		return graph.Div(adjoint, cos2)
	})
	registerTranscendental(graph.OpAsin, "asin", math.Asin, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		return inverseTrigGrad(a, adjoint)
	})
	registerTranscendental(graph.OpAcos, "acos", math.Acos, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		g, err := inverseTrigGrad(a, adjoint)
		if err != nil {
			return nil, err
		}
		return graph.Neg(g)
	})
	registerTranscendental(graph.OpAtan, "atan", math.Atan, func(a *graph.Node, adjoint *graph.Node) (*graph.Node, error) {
		one, err := graph.Constant(floatBytes(1, a.Type), a.Type, graph.Shape{1})
		if err != nil {
			return nil, err
		}
		a2, err := graph.Mul(a, a)
		if err != nil {
			return nil, err
		}
		denom, err := graph.Add(one, a2)
		if err != nil {
			return nil, err
		}
		return graph.Div(adjoint, denom)
	})

	register(graph.OpLess, Entry{Score: 1, ReuseParameter: alwaysFalse, ExecuteCPU: comparison(func(x, y float64) bool { return x < y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = (%s < %s) ? 1 : 0;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) { return eagerKernel("less", rt, pt, "in0 < in1 ? 1 : 0") },
		LocalGradient:    nonDifferentiable("less"),
		FreeAdditionalData: noFree,
	})
	register(graph.OpEqual, Entry{Score: 1, ReuseParameter: alwaysFalse, ExecuteCPU: comparison(func(x, y float64) bool { return x == y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = (%s == %s) ? 1 : 0;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) { return eagerKernel("equal", rt, pt, "in0 == in1 ? 1 : 0") },
		LocalGradient:    nonDifferentiable("equal"),
		FreeAdditionalData: noFree,
	})
	register(graph.OpGreater, Entry{Score: 1, ReuseParameter: alwaysFalse, ExecuteCPU: comparison(func(x, y float64) bool { return x > y }),
		GenerateOCLLazy: func(node *graph.Node, name string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = (%s > %s) ? 1 : 0;", name, state.NameFor(node.Predecessors[0]), state.NameFor(node.Predecessors[1])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) { return eagerKernel("greater", rt, pt, "in0 > in1 ? 1 : 0") },
		LocalGradient:    nonDifferentiable("greater"),
		FreeAdditionalData: noFree,
	})
}

func registerTranscendental(kind graph.OpKind, name string, fn func(float64) float64, grad func(a, adjoint *graph.Node) (*graph.Node, error)) {
	register(kind, Entry{
		Score:          4,
		ReuseParameter: func(node *graph.Node, _ int) bool { return matchingShapeType(node, 0) },
		ExecuteCPU:     elementwiseUnary(fn),
		GenerateOCLLazy: func(node *graph.Node, varName string, state *CodegenState) (string, error) {
			return fmt.Sprintf("%s = %s(%s);", varName, name, state.NameFor(node.Predecessors[0])), nil
		},
		GenerateOCLEager: func(rt graph.ElementType, pt []graph.ElementType) (string, error) {
			return eagerKernel(name, rt, pt, name+"(in0)")
		},
		LocalGradient: func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
			return grad(node.Predecessors[0], adjoint)
		},
		FreeAdditionalData: noFree,
	})
}

func nonDifferentiable(name string) func(node *graph.Node, inputIndex int, adjoint *graph.Node) (*graph.Node, error) {
	return func(*graph.Node, int, *graph.Node) (*graph.Node, error) {
		return nil, fmt.Errorf("registry: %s is not differentiable", name)
	}
}

func inverseTrigGrad(a, adjoint *graph.Node) (*graph.Node, error) {
	one, err := graph.Constant(floatBytes(1, a.Type), a.Type, graph.Shape{1})
	if err != nil {
		return nil, err
	}
	a2, err := graph.Mul(a, a)
	if err != nil {
		return nil, err
	}
	diff, err := graph.Sub(one, a2)
	if err != nil {
		return nil, err
	}
	root, err := graph.Sqrt(diff)
	if err != nil {
		return nil, err
	}
	return graph.Div(adjoint, root)
}

func oneBytes(t graph.ElementType) []byte { return floatBytes(1, t) }

func floatBytes(v float64, t graph.ElementType) []byte {
	buf := make([]byte, graph.ElementSize(t))
	WriteElement(buf, t, 0, v)
	return buf
}
