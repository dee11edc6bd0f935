package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReshapeRejectsElementCountMismatch(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Reshape(a, Shape{6})
	require.NoError(t, err)
	assert.Equal(t, Shape{6}, n.Shape)

	_, err = Reshape(a, Shape{4})
	assert.Error(t, err)
}

func TestFlattenCollapsesToOneAxis(t *testing.T) {
	a, _ := Store(make([]byte, 4*24), Int32, Shape{2, 3, 4})
	n, err := Flatten(a)
	require.NoError(t, err)
	assert.Equal(t, Shape{24}, n.Shape)
}

func TestTransposePermutesAxes(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Transpose(a, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, n.Shape)

	_, err = Transpose(a, []int{0, 0})
	assert.Error(t, err)
}

func TestRepeatScalesAxes(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Repeat(a, []int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 3}, n.Shape)
}

func TestSliceComputesOutputSize(t *testing.T) {
	a, _ := Store(make([]byte, 4*10), Int32, Shape{10})
	n, err := Slice(a, []int{0}, []int{10}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, Shape{5}, n.Shape)

	_, err = Slice(a, []int{0}, []int{10}, []int{0})
	assert.Error(t, err)
}

func TestSliceNormalizesNegativeIndicesFromTheEnd(t *testing.T) {
	a, _ := Store(make([]byte, 4*5), Int32, Shape{5})

	n, err := Slice(a, []int{4}, []int{-6}, []int{-1})
	require.NoError(t, err)
	assert.Equal(t, Shape{5}, n.Shape)
	assert.Equal(t, []int{4}, n.Aux.SliceStart)
	assert.Equal(t, []int{-1}, n.Aux.SliceEnd)
	assert.Equal(t, []int{-1}, n.Aux.SliceStep)
}

func TestExtendRejectsOutOfBoundsPlacement(t *testing.T) {
	a, _ := Store(make([]byte, 4*3), Int32, Shape{3})
	n, err := Extend(a, Shape{10}, []int{2}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, Shape{10}, n.Shape)

	_, err = Extend(a, Shape{5}, []int{2}, []int{2})
	assert.Error(t, err)
}

func TestConcatRequiresMatchingNonConcatAxes(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	b, _ := Store(make([]byte, 4*9), Int32, Shape{3, 3})
	n, err := Concat(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, Shape{5, 3}, n.Shape)

	c, _ := Store(make([]byte, 4*8), Int32, Shape{2, 4})
	_, err = Concat(a, c, 0)
	assert.Error(t, err)
}

func TestExpandInsertsAxis(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Expand(a, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 5, 3}, n.Shape)
}
