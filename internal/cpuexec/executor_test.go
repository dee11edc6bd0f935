package cpuexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

func storeFloat64(t *testing.T, shape graph.Shape, values []float64) *graph.Node {
	t.Helper()
	buf := registry.NewBuffer(graph.Float64, shape.Count())
	for i, v := range values {
		registry.WriteElement(buf, graph.Float64, i, v)
	}
	n, err := graph.Store(buf, graph.Float64, shape)
	require.NoError(t, err)
	return n
}

func TestMaterializeComputesSimpleExpression(t *testing.T) {
	a := storeFloat64(t, graph.Shape{3}, []float64{1, 2, 3})
	b := storeFloat64(t, graph.Shape{3}, []float64{10, 20, 30})
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	ex := New(nil)
	defer ex.Close()

	result, err := ex.Materialize(node)
	require.NoError(t, err)
	got := make([]float64, 3)
	for i := range got {
		got[i] = registry.ReadElement(result.CPUData, node.Type, i)
	}
	assert.Equal(t, []float64{11, 22, 33}, got)
}

func TestMaterializeReusesEligiblePredecessorBuffer(t *testing.T) {
	a := storeFloat64(t, graph.Shape{4}, []float64{1, 2, 3, 4})
	neg, err := graph.Neg(a)
	require.NoError(t, err)
	abs, err := graph.Abs(neg)
	require.NoError(t, err)

	ex := New(nil)
	defer ex.Close()

	_, err = ex.Materialize(abs)
	require.NoError(t, err)

	negResult := neg.ResultSnapshot()
	require.NotNil(t, negResult)
	assert.True(t, negResult.Consumed)
}

func TestMaterializeLargeNodeRunsInParallel(t *testing.T) {
	n := ParallelThreshold * 4
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	a := storeFloat64(t, graph.Shape{n}, values)
	b := storeFloat64(t, graph.Shape{n}, values)
	node, err := graph.Mul(a, b)
	require.NoError(t, err)

	ex := New(nil)
	defer ex.Close()

	result, err := ex.Materialize(node)
	require.NoError(t, err)
	for i := 0; i < n; i += n / 8 {
		assert.Equal(t, values[i]*values[i], registry.ReadElement(result.CPUData, node.Type, i))
	}
}
