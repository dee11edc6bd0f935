package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
)

func TestReduceSumExecutesOverAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 6), graph.Float64, graph.Shape{2, 3})
	require.NoError(t, err)
	node, err := graph.ReduceSum(a, 1)
	require.NoError(t, err)

	entry, ok := Get(graph.OpReduceSum)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{2, 3}, []float64{1, 2, 3, 4, 5, 6})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{6, 15}, readAll(out, node.Type, node.Shape.Count()))
}

func TestReduceMaxGradientIsMaskMultiplyOverInputShape(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 3), graph.Float64, graph.Shape{3})
	require.NoError(t, err)
	node, err := graph.ReduceMax(a, 0)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpReduceMax)
	require.True(t, ok)
	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, grad.Shape)
	assert.Equal(t, graph.OpMul, grad.Op)
}

func TestMatmulExecutesOverTwoByTwoOperands(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{2, 2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{2, 2})
	require.NoError(t, err)
	node, err := graph.Matmul(a, b)
	require.NoError(t, err)

	entry, ok := Get(graph.OpMatmul)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float64, graph.Shape{2, 2}, []float64{1, 2, 3, 4}),
		viewOf(t, graph.Float64, graph.Shape{2, 2}, []float64{5, 6, 7, 8}),
	}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{19, 22, 43, 50}, readAll(out, node.Type, node.Shape.Count()))
}

func TestMatmulGradientTransposesOtherOperand(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{2, 2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{2, 2})
	require.NoError(t, err)
	node, err := graph.Matmul(a, b)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpMatmul)
	require.True(t, ok)

	gradA, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, gradA.Shape)

	gradB, err := entry.LocalGradient(node, 1, adjoint)
	require.NoError(t, err)
	assert.Equal(t, b.Shape, gradB.Shape)
}
