package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvolveSingleKernelOutputShape(t *testing.T) {
	a, _ := Store(make([]byte, 4*8*8), Int32, Shape{8, 8})
	kernel, _ := Store(make([]byte, 4*3*3), Int32, Shape{3, 3})
	n, err := Convolve(a, kernel, []int{1, 1}, false)
	require.NoError(t, err)
	assert.Equal(t, Shape{6, 6}, n.Shape)
}

func TestConvolveMultiKernelAddsChannelAxis(t *testing.T) {
	a, _ := Store(make([]byte, 4*8*8), Int32, Shape{8, 8})
	kernel, _ := Store(make([]byte, 4*4*3*3), Int32, Shape{4, 3, 3})
	n, err := Convolve(a, kernel, []int{1, 1}, true)
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 6, 6}, n.Shape)
}

func TestConvolveRejectsOversizedKernel(t *testing.T) {
	a, _ := Store(make([]byte, 4*2*2), Int32, Shape{2, 2})
	kernel, _ := Store(make([]byte, 4*3*3), Int32, Shape{3, 3})
	_, err := Convolve(a, kernel, []int{1, 1}, false)
	assert.Error(t, err)
}

func TestSlidingWindowAppendsKernelAxes(t *testing.T) {
	a, _ := Store(make([]byte, 4*8), Int32, Shape{8})
	n, err := SlidingWindow(a, Shape{2}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 2}, n.Shape)
}

func TestPoolingMaxOutputShape(t *testing.T) {
	a, _ := Store(make([]byte, 4*4*4), Int32, Shape{4, 4})
	n, err := PoolingMax(a, Shape{2, 2}, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, n.Shape)
}

func TestGradientPoolingMaxRestoresOriginalShape(t *testing.T) {
	a, _ := Store(make([]byte, 4*4*4), Int32, Shape{4, 4})
	pooled, _ := PoolingMax(a, Shape{2, 2}, []int{2, 2})
	grad, err := GradientPoolingMax(pooled, a, Shape{2, 2}, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, a.Shape, grad.Shape)
}
