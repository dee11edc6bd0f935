package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/pkg/ferrors"
)

func TestStoreValidatesDataLength(t *testing.T) {
	data := make([]byte, 4*6)
	n, err := Store(data, Float32, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, OpStore, n.Op)
	assert.Equal(t, 6, n.Result.Count)

	_, err = Store(data[:4], Float32, Shape{2, 3})
	assert.Error(t, err)
}

func TestConstantRequiresSingleElement(t *testing.T) {
	n, err := Constant([]byte{1, 2, 3, 4}, Int32, Shape{4})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, n.ConstantValue)

	_, err = Constant([]byte{1, 2}, Int32, Shape{4})
	assert.Error(t, err)
}

func TestArangeRejectsNonPositiveCount(t *testing.T) {
	n, err := Arange(5, 0, 1, Int32)
	require.NoError(t, err)
	assert.Equal(t, Shape{5}, n.Shape)

	_, err = Arange(0, 0, 1, Int32)
	assert.Error(t, err)
}

func TestAddBroadcastsAndPromotes(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	b, _ := Store(make([]byte, 8*3), Int64, Shape{3})

	sum, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, Int64, sum.Type)
	assert.Equal(t, Shape{2, 3}, sum.Shape)
	assert.Equal(t, ModeForward, sum.BroadcastMode)
}

func TestAddRejectsIncompatibleShapes(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	b, _ := Store(make([]byte, 4*4), Int32, Shape{4})

	_, err := Add(a, b)
	assert.Error(t, err)
}

func TestTranscendentalPromotesIntToFloat64(t *testing.T) {
	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	n, err := Log(a)
	require.NoError(t, err)
	assert.Equal(t, Float64, n.Type)
}

func TestComparisonAlwaysYieldsInt32(t *testing.T) {
	a, _ := Store(make([]byte, 8*6), Float64, Shape{2, 3})
	b, _ := Store(make([]byte, 8*6), Float64, Shape{2, 3})
	n, err := Less(a, b)
	require.NoError(t, err)
	assert.Equal(t, Int32, n.Type)
}

func TestBuilderChainingShortCircuitsAfterFirstFailure(t *testing.T) {
	b := NewBuilder(&ferrors.State{})

	a, _ := Store(make([]byte, 4*6), Int32, Shape{2, 3})
	bad, _ := Store(make([]byte, 4*4), Int32, Shape{4})

	result := b.Add(a, bad)
	assert.Nil(t, result)
	require.NotNil(t, b.LastError())

	chained := b.Neg(result)
	assert.Nil(t, chained)
}
