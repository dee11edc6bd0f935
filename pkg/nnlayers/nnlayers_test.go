package nnlayers

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

func TestConv2DAppliesBiasAfterConvolution(t *testing.T) {
	input := storeVec(t, graph.Shape{1, 4, 4}, make([]float64, 16)...)
	kernel := storeVec(t, graph.Shape{2, 2, 2}, make([]float64, 8)...)
	bias := storeVec(t, graph.Shape{1}, 1)

	out, err := Conv2D(input, kernel, bias, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, graph.OpAdd, out.Op)
}

func TestConv2DWithoutBiasReturnsConvolveDirectly(t *testing.T) {
	input := storeVec(t, graph.Shape{1, 4, 4}, make([]float64, 16)...)
	kernel := storeVec(t, graph.Shape{2, 2, 2}, make([]float64, 8)...)

	out, err := Conv2D(input, kernel, nil, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, graph.OpConvolve, out.Op)
}

func TestDenseMatmulAppliesBias(t *testing.T) {
	input := storeVec(t, graph.Shape{1, 3}, 1, 2, 3)
	weight := storeVec(t, graph.Shape{3, 2}, make([]float64, 6)...)
	bias := storeVec(t, graph.Shape{1, 2}, 0, 0)

	out, err := DenseMatmul(input, weight, bias)
	require.NoError(t, err)
	assert.Equal(t, graph.OpAdd, out.Op)
}

func TestReluIsAddOfAbsThenHalved(t *testing.T) {
	x := storeVec(t, graph.Shape{3}, -1, 0, 2)

	out, err := Relu(x)
	require.NoError(t, err)
	assert.Equal(t, graph.OpMul, out.Op)
}
