package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
)

func TestTransposeExecutesPermutation(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 6), graph.Float64, graph.Shape{2, 3})
	require.NoError(t, err)
	node, err := graph.Transpose(a, []int{1, 0})
	require.NoError(t, err)

	entry, ok := Get(graph.OpTranspose)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{2, 3}, []float64{1, 2, 3, 4, 5, 6})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, readAll(out, node.Type, node.Shape.Count()))
}

func TestSliceExtractsSubrange(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 5), graph.Float64, graph.Shape{5})
	require.NoError(t, err)
	node, err := graph.Slice(a, []int{1}, []int{5}, []int{2})
	require.NoError(t, err)

	entry, ok := Get(graph.OpSlice)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{5}, []float64{10, 20, 30, 40, 50})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{20, 40}, readAll(out, node.Type, node.Shape.Count()))
}

func TestSliceGradientCallsExtend(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 5), graph.Float64, graph.Shape{5})
	require.NoError(t, err)
	node, err := graph.Slice(a, []int{1}, []int{5}, []int{2})
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpSlice)
	require.True(t, ok)
	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, graph.OpExtend, grad.Op)
	assert.Equal(t, a.Shape, grad.Shape)
}

func TestConcatExecutesAlongAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	b, err := graph.Store(NewBuffer(graph.Float64, 3), graph.Float64, graph.Shape{3})
	require.NoError(t, err)
	node, err := graph.Concat(a, b, 0)
	require.NoError(t, err)

	entry, ok := Get(graph.OpConcat)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float64, graph.Shape{2}, []float64{1, 2}),
		viewOf(t, graph.Float64, graph.Shape{3}, []float64{3, 4, 5}),
	}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, readAll(out, node.Type, node.Shape.Count()))
}

func TestExpandGradientReducesInsertedAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 3), graph.Float64, graph.Shape{3})
	require.NoError(t, err)
	node, err := graph.Expand(a, 0, 4)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpExpand)
	require.True(t, ok)
	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, grad.Shape)
}
