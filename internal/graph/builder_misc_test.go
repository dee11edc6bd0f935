package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexReadRequiresIntegerIndex(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	index, _ := Store(make([]byte, 4*2), Int32, Shape{2})
	n, err := IndexRead(a, index, 0)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, n.Shape)

	floatIndex, _ := Store(make([]byte, 4*2), Float32, Shape{2})
	_, err = IndexRead(a, floatIndex, 0)
	assert.Error(t, err)
}

func TestDropoutRejectsOutOfRangeProbability(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Float32, Shape{2, 3})
	_, err := Dropout(a, 1.0)
	assert.Error(t, err)

	n, err := Dropout(a, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, n.Aux.DropoutP)
}

func TestConvertChangesType(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Convert(a, Float64)
	require.NoError(t, err)
	assert.Equal(t, Float64, n.Type)
}
