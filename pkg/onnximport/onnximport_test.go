package onnximport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

func storeVec(t *testing.T, shape graph.Shape, values ...float64) *graph.Node {
	t.Helper()
	buf := registry.NewBuffer(graph.Float64, shape.Count())
	for i, v := range values {
		registry.WriteElement(buf, graph.Float64, i, v)
	}
	n, err := graph.Store(buf, graph.Float64, shape)
	require.NoError(t, err)
	return n
}

func TestBuildGraphRejectsEmptyTopology(t *testing.T) {
	_, err := BuildGraph(&ImportedModel{}, nil)
	assert.Error(t, err)
}

func TestBuildGraphWalksDenseReluChain(t *testing.T) {
	m := &ImportedModel{
		Weights: map[string]*graph.Node{
			"data": storeVec(t, graph.Shape{1, 3}, 1, 2, 3),
			"w1":   storeVec(t, graph.Shape{3, 2}, 1, 0, 0, 1, 1, 1),
			"b1":   storeVec(t, graph.Shape{1, 2}, 0, 0),
		},
		Topology: []LayerSpec{
			{Kind: LayerInput, Weight: "data"},
			{Kind: LayerDense, Inputs: []int{0}, Weight: "w1", Bias: "b1"},
			{Kind: LayerRelu, Inputs: []int{1}},
		},
	}

	out, err := BuildGraph(m, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.OpDiv, out.Op)
	assert.Equal(t, graph.Shape{1, 2}, out.Shape)
}

func TestBuildGraphWalksConvThenFlatten(t *testing.T) {
	m := &ImportedModel{
		Weights: map[string]*graph.Node{
			"data":   storeVec(t, graph.Shape{1, 4, 4}, make([]float64, 16)...),
			"kernel": storeVec(t, graph.Shape{2, 2, 2}, make([]float64, 8)...),
		},
		Topology: []LayerSpec{
			{Kind: LayerInput, Weight: "data"},
			{Kind: LayerConv, Inputs: []int{0}, Weight: "kernel", Stride: []int{1, 1}, MultiKernel: true},
			{Kind: LayerFlatten, Inputs: []int{1}},
		},
	}

	out, err := BuildGraph(m, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.OpFlatten, out.Op)
}

func TestBuildGraphRejectsUnknownWeight(t *testing.T) {
	m := &ImportedModel{
		Weights: map[string]*graph.Node{
			"data": storeVec(t, graph.Shape{1, 2}, 1, 2),
		},
		Topology: []LayerSpec{
			{Kind: LayerInput, Weight: "data"},
			{Kind: LayerDense, Inputs: []int{0}, Weight: "missing"},
		},
	}

	_, err := BuildGraph(m, nil)
	assert.Error(t, err)
}

func TestBuildGraphGlobalAvgPoolDividesByWindowSize(t *testing.T) {
	m := &ImportedModel{
		Weights: map[string]*graph.Node{
			"data": storeVec(t, graph.Shape{1, 1, 4, 4}, make([]float64, 16)...),
		},
		Topology: []LayerSpec{
			{Kind: LayerInput, Weight: "data"},
			{Kind: LayerGlobalAvgPool, Inputs: []int{0}, KernelShape: graph.Shape{4, 4}, Stride: []int{1, 1}},
		},
	}

	out, err := BuildGraph(m, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.OpDiv, out.Op)
}
