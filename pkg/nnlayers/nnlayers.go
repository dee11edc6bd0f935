// Package nnlayers keeps the thin, optional layer-construction helpers that
// sit above the core graph builders (internal/graph's Convolve, Matmul,
// Add, ...), grounded on original_source/src/onnx/layers.hpp's Convolve and
// Connected layers. They are convenience compositions only: nothing here
// is reachable from pkg/onnximport.BuildGraph, which calls the core graph
// builders directly the way original_source/src/onnx/model.cpp does.
package nnlayers

import (
	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

// Conv2D convolves input with kernel (one extra leading output-channel
// axis, per multiKernel convolutions) and adds bias, broadcasting bias
// across the spatial output the way original_source's Convolve layer
// feeds straight into an Add layer.
func Conv2D(input, kernel, bias *graph.Node, stride []int) (*graph.Node, error) {
	conv, err := graph.Convolve(input, kernel, stride, true)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		return conv, nil
	}
	return graph.Add(conv, bias)
}

// DenseMatmul computes input @ weight + bias, the fully-connected
// composition original_source/src/onnx/layers.hpp's Connected layer (ONNX
// "Gemm") performs.
func DenseMatmul(input, weight, bias *graph.Node) (*graph.Node, error) {
	out, err := graph.Matmul(input, weight)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		return out, nil
	}
	return graph.Add(out, bias)
}

// Relu computes max(x, 0) as (x + |x|) / 2, since the core op set has no
// dedicated comparison-select primitive; original_source's Relu layer is
// a single elementwise max against zero, which this is arithmetically
// equivalent to.
func Relu(x *graph.Node) (*graph.Node, error) {
	abs, err := graph.Abs(x)
	if err != nil {
		return nil, err
	}
	sum, err := graph.Add(x, abs)
	if err != nil {
		return nil, err
	}
	half, err := graph.Constant(halfBytes(x.Type), x.Type, graph.Shape{1})
	if err != nil {
		return nil, err
	}
	return graph.Mul(sum, half)
}

func halfBytes(t graph.ElementType) []byte {
	buf := registry.NewBuffer(t, 1)
	registry.WriteElement(buf, t, 0, 0.5)
	return buf
}
