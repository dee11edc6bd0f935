// Package onnximport builds a graph from an already-parsed model
// description, mirroring original_source/src/onnx/model.cpp's
// GraphModel::load_model: that function walks a parsed onnx::ModelProto and
// emits Flint graph nodes layer by layer, looking up each layer's declared
// inputs by name among the weights and previously emitted layers. The
// protobuf parsing itself is not reproduced here (spec.md names no .proto
// schema); ImportedModel is the contract a caller's own parser must produce.
package onnximport

import (
	"context"
	"fmt"

	"github.com/flint-go/flint/internal/engine"
	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
	"github.com/flint-go/flint/pkg/ferrors"
	"github.com/flint-go/flint/pkg/tensorcodec"
)

// LayerKind enumerates the ONNX op types original_source/src/onnx/model.cpp
// recognizes (Conv, Relu, BatchNormalization, Add, GlobalAveragePool,
// MaxPool, Flatten, Gemm), plus Input for the graph's entry placeholder.
type LayerKind int

const (
	LayerInput LayerKind = iota
	LayerConv
	LayerRelu
	LayerAdd
	LayerMaxPool
	LayerAvgPool
	LayerGlobalAvgPool
	LayerFlatten
	LayerDense
)

// LayerSpec is one node of the imported topology. Inputs indexes into the
// running value list BuildGraph accumulates as it walks Topology in order,
// matching model.cpp's incoming/outgoing adjacency built from ONNX input
// names; Weight, when non-empty, looks up a parameter in
// ImportedModel.Weights the way model.cpp resolves a Variable by its
// initializer name.
type LayerSpec struct {
	Kind        LayerKind
	Inputs      []int
	Weight      string
	Bias        string
	Stride      []int
	KernelShape graph.Shape
	MultiKernel bool
}

// ImportedModel is the Go-side contract an external parser (ONNX protobuf
// or otherwise) must produce: Weights holds every initializer already
// materialized as a Store node, Topology the flattened layer list in
// original declaration order.
type ImportedModel struct {
	Weights  map[string]*graph.Node
	Topology []LayerSpec
}

// BuildGraph walks m.Topology in order, calling the matching core graph
// constructor per layer exactly as model.cpp's per-op_type switch does, and
// returns the last layer's output node. If eng carries a configured tensor
// store, every weight is persisted under "onnx/<name>" as a side effect, so
// a re-import of the same model can Load rather than re-parse; a nil store
// (the common case in tests) simply skips this.
func BuildGraph(m *ImportedModel, eng *engine.Engine) (*graph.Node, error) {
	if m == nil || len(m.Topology) == 0 {
		return nil, ferrors.New(ferrors.InternalError, "onnximport: model has no layers")
	}

	if err := persistWeights(eng, m.Weights); err != nil {
		return nil, err
	}

	values := make([]*graph.Node, len(m.Topology))
	for i, layer := range m.Topology {
		node, err := buildLayer(layer, m, values[:i])
		if err != nil {
			return nil, fmt.Errorf("onnximport: layer %d (%v): %w", i, layer.Kind, err)
		}
		values[i] = node
	}
	return values[len(values)-1], nil
}

func buildLayer(layer LayerSpec, m *ImportedModel, prior []*graph.Node) (*graph.Node, error) {
	input := func(i int) (*graph.Node, error) {
		if i < 0 || i >= len(prior)+1 {
			return nil, ferrors.New(ferrors.InvalidSelect, "onnximport: input index out of range")
		}
		if i == len(prior) {
			return nil, ferrors.New(ferrors.InvalidSelect, "onnximport: layer references its own output")
		}
		return prior[i], nil
	}
	weight := func(name string) (*graph.Node, error) {
		w, ok := m.Weights[name]
		if !ok {
			return nil, ferrors.New(ferrors.InternalError, fmt.Sprintf("onnximport: unknown weight %q", name))
		}
		return w, nil
	}

	switch layer.Kind {
	case LayerInput:
		return weight(layer.Weight)

	case LayerConv:
		if len(layer.Inputs) != 1 {
			return nil, ferrors.New(ferrors.InternalError, "onnximport: Conv requires exactly one input")
		}
		in, err := input(layer.Inputs[0])
		if err != nil {
			return nil, err
		}
		kernel, err := weight(layer.Weight)
		if err != nil {
			return nil, err
		}
		conv, err := graph.Convolve(in, kernel, layer.Stride, layer.MultiKernel)
		if err != nil {
			return nil, err
		}
		if layer.Bias == "" {
			return conv, nil
		}
		bias, err := weight(layer.Bias)
		if err != nil {
			return nil, err
		}
		return graph.Add(conv, bias)

	case LayerDense:
		if len(layer.Inputs) != 1 {
			return nil, ferrors.New(ferrors.InternalError, "onnximport: Gemm requires exactly one input")
		}
		in, err := input(layer.Inputs[0])
		if err != nil {
			return nil, err
		}
		w, err := weight(layer.Weight)
		if err != nil {
			return nil, err
		}
		out, err := graph.Matmul(in, w)
		if err != nil {
			return nil, err
		}
		if layer.Bias == "" {
			return out, nil
		}
		bias, err := weight(layer.Bias)
		if err != nil {
			return nil, err
		}
		return graph.Add(out, bias)

	case LayerAdd:
		if len(layer.Inputs) != 2 {
			return nil, ferrors.New(ferrors.InternalError, "onnximport: Add requires exactly two inputs")
		}
		a, err := input(layer.Inputs[0])
		if err != nil {
			return nil, err
		}
		b, err := input(layer.Inputs[1])
		if err != nil {
			return nil, err
		}
		return graph.Add(a, b)

	case LayerRelu:
		in, err := singleInput(layer, input)
		if err != nil {
			return nil, err
		}
		abs, err := graph.Abs(in)
		if err != nil {
			return nil, err
		}
		sum, err := graph.Add(in, abs)
		if err != nil {
			return nil, err
		}
		twoBuf := registry.NewBuffer(in.Type, 1)
		registry.WriteElement(twoBuf, in.Type, 0, 2)
		two, err := graph.Constant(twoBuf, in.Type, graph.Shape{1})
		if err != nil {
			return nil, err
		}
		return graph.Div(sum, two)

	case LayerFlatten:
		in, err := singleInput(layer, input)
		if err != nil {
			return nil, err
		}
		return graph.Flatten(in)

	case LayerMaxPool:
		in, err := singleInput(layer, input)
		if err != nil {
			return nil, err
		}
		return graph.PoolingMax(in, layer.KernelShape, layer.Stride)

	case LayerAvgPool, LayerGlobalAvgPool:
		in, err := singleInput(layer, input)
		if err != nil {
			return nil, err
		}
		sum, err := graph.PoolingSum(in, layer.KernelShape, layer.Stride)
		if err != nil {
			return nil, err
		}
		return divideByWindowSize(sum, layer.KernelShape)

	default:
		return nil, ferrors.New(ferrors.InternalError, fmt.Sprintf("onnximport: unsupported layer kind %v", layer.Kind))
	}
}

// divideByWindowSize turns a pooling sum into a pooling average, matching
// original_source's AvgPool/GlobalAvgPool forward (fdiv_ci(freduce_sum(...),
// window element count)).
func divideByWindowSize(sum *graph.Node, kernelShape graph.Shape) (*graph.Node, error) {
	buf := registry.NewBuffer(sum.Type, 1)
	registry.WriteElement(buf, sum.Type, 0, float64(kernelShape.Count()))
	divisor, err := graph.Constant(buf, sum.Type, graph.Shape{1})
	if err != nil {
		return nil, err
	}
	return graph.Div(sum, divisor)
}

func singleInput(layer LayerSpec, input func(int) (*graph.Node, error)) (*graph.Node, error) {
	if len(layer.Inputs) != 1 {
		return nil, ferrors.New(ferrors.InternalError, "onnximport: layer requires exactly one input")
	}
	return input(layer.Inputs[0])
}

func persistWeights(eng *engine.Engine, weights map[string]*graph.Node) error {
	if eng == nil || eng.Store() == nil {
		return nil
	}
	store := eng.Store()
	ctx := context.Background()
	for name, w := range weights {
		r, err := eng.Materialize(ctx, w)
		if err != nil {
			return fmt.Errorf("onnximport: materializing weight %q: %w", name, err)
		}
		err = store.Save(ctx, "onnx/"+name, &tensorcodec.Tensor{
			Shape: w.Shape,
			Type:  w.Type,
			Data:  r.CPUData,
		})
		if err != nil {
			return fmt.Errorf("onnximport: persisting weight %q: %w", name, err)
		}
	}
	return nil
}
