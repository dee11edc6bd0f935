package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
)

func TestConvolveSingleKernelComputesDotProducts(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	kernel, err := graph.Store(NewBuffer(graph.Float64, 2), graph.Float64, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Convolve(a, kernel, []int{1}, false)
	require.NoError(t, err)
	assert.Equal(t, graph.Shape{3}, node.Shape)

	entry, ok := Get(graph.OpConvolve)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float64, graph.Shape{4}, []float64{1, 2, 3, 4}),
		viewOf(t, graph.Float64, graph.Shape{2}, []float64{10, 1}),
	}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{12, 23, 34}, readAll(out, node.Type, node.Shape.Count()))
}

func TestPoolingMaxSelectsWindowMaximum(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	node, err := graph.PoolingMax(a, graph.Shape{2}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, graph.Shape{2}, node.Shape)

	entry, ok := Get(graph.OpPoolingMax)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{4}, []float64{1, 5, 2, 9})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{5, 9}, readAll(out, node.Type, node.Shape.Count()))
}

func TestPoolingMaxGradientRestoresOriginalShape(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	node, err := graph.PoolingMax(a, graph.Shape{2}, []int{2})
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpPoolingMax)
	require.True(t, ok)
	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, grad.Shape)
	assert.Equal(t, graph.OpGradientPoolingMax, grad.Op)
}

func TestSlidingWindowAppendsWindowAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	node, err := graph.SlidingWindow(a, graph.Shape{2}, []int{1})
	require.NoError(t, err)

	entry, ok := Get(graph.OpSlidingWindow)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{4}, []float64{1, 2, 3, 4})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{1, 2, 2, 3, 3, 4}, readAll(out, node.Type, node.Shape.Count()))
}
