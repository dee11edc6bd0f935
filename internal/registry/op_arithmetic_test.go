package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
)

func viewOf(t *testing.T, et graph.ElementType, shape graph.Shape, values []float64) CPUView {
	t.Helper()
	buf := NewBuffer(et, shape.Count())
	for i, v := range values {
		WriteElement(buf, et, i, v)
	}
	return CPUView{Data: buf, Type: et, Shape: shape}
}

func readAll(buf []byte, et graph.ElementType, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = ReadElement(buf, et, i)
	}
	return out
}

func TestAddBroadcastsOverTrailingAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{2, 2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	entry, ok := Get(graph.OpAdd)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float64, graph.Shape{2, 2}, []float64{1, 2, 3, 4}),
		viewOf(t, graph.Float64, graph.Shape{2}, []float64{10, 20}),
	}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{11, 22, 13, 24}, readAll(out, node.Type, node.Shape.Count()))
}

func TestMulGradientUsesProductRule(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Mul(a, b)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)

	entry, ok := Get(graph.OpMul)
	require.True(t, ok)

	gradA, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, graph.OpMul, gradA.Op)

	gradB, err := entry.LocalGradient(node, 1, adjoint)
	require.NoError(t, err)
	assert.Equal(t, graph.OpMul, gradB.Op)
}

func TestComparisonYieldsInt32(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float32, 2), graph.Float32, graph.Shape{2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float32, 2), graph.Float32, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Less(a, b)
	require.NoError(t, err)

	entry, ok := Get(graph.OpLess)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float32, graph.Shape{2}, []float64{1, 5}),
		viewOf(t, graph.Float32, graph.Shape{2}, []float64{3, 2}),
	}
	out := NewBuffer(node.Type, 2)
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, 2))
	assert.Equal(t, []float64{1, 0}, readAll(out, graph.Int32, 2))

	_, err = entry.LocalGradient(node, 0, nil)
	assert.Error(t, err)
}

func TestSqrtGradientIsChainRule(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Sqrt(a)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)

	entry, ok := Get(graph.OpSqrt)
	require.True(t, ok)

	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, graph.Shape{2}, grad.Shape)
}
