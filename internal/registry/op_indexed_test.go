package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
)

func TestIndexReadGathersAlongAxis(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	idxBuf := NewBuffer(graph.Int32, 2)
	WriteElement(idxBuf, graph.Int32, 0, 3)
	WriteElement(idxBuf, graph.Int32, 1, 0)
	index, err := graph.Store(idxBuf, graph.Int32, graph.Shape{2})
	require.NoError(t, err)

	node, err := graph.IndexRead(a, index, 0)
	require.NoError(t, err)
	assert.Equal(t, graph.Shape{2}, node.Shape)

	entry, ok := Get(graph.OpIndexRead)
	require.True(t, ok)

	views := []CPUView{
		viewOf(t, graph.Float64, graph.Shape{4}, []float64{10, 20, 30, 40}),
		{Data: idxBuf, Type: graph.Int32, Shape: graph.Shape{2}},
	}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{40, 10}, readAll(out, node.Type, node.Shape.Count()))
}

func TestIndexReadGradientIsNonDifferentiableOnIndexOperand(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	idxBuf := NewBuffer(graph.Int32, 2)
	index, err := graph.Store(idxBuf, graph.Int32, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.IndexRead(a, index, 0)
	require.NoError(t, err)
	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)

	entry, ok := Get(graph.OpIndexRead)
	require.True(t, ok)

	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, grad.Shape)
	assert.Equal(t, graph.OpIndexWrite, grad.Op)

	_, err = entry.LocalGradient(node, 1, adjoint)
	assert.Error(t, err)
}

func TestDropoutScalesSurvivingElements(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float64, 8), graph.Float64, graph.Shape{8})
	require.NoError(t, err)
	node, err := graph.Dropout(a, 0.5)
	require.NoError(t, err)

	entry, ok := Get(graph.OpDropout)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float64, graph.Shape{8}, []float64{1, 1, 1, 1, 1, 1, 1, 1})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	for _, v := range readAll(out, node.Type, node.Shape.Count()) {
		assert.True(t, v == 0 || v == 2)
	}
}

func TestConvertChangesTypeAndGradientConvertsBack(t *testing.T) {
	a, err := graph.Store(NewBuffer(graph.Float32, 2), graph.Float32, graph.Shape{2})
	require.NoError(t, err)
	node, err := graph.Convert(a, graph.Float64)
	require.NoError(t, err)

	entry, ok := Get(graph.OpConvert)
	require.True(t, ok)

	views := []CPUView{viewOf(t, graph.Float32, graph.Shape{2}, []float64{1.5, 2.5})}
	out := NewBuffer(node.Type, node.Shape.Count())
	require.NoError(t, entry.ExecuteCPU(node, views, out, 0, node.Shape.Count()))
	assert.Equal(t, []float64{1.5, 2.5}, readAll(out, node.Type, node.Shape.Count()))

	adjoint, err := graph.Store(NewBuffer(graph.Float64, node.Shape.Count()), graph.Float64, node.Shape)
	require.NoError(t, err)
	grad, err := entry.LocalGradient(node, 0, adjoint)
	require.NoError(t, err)
	assert.Equal(t, graph.Float32, grad.Type)
}
