package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

func storeVec(t *testing.T, count int) *graph.Node {
	t.Helper()
	n, err := graph.Store(registry.NewBuffer(graph.Float64, count), graph.Float64, graph.Shape{count})
	require.NoError(t, err)
	return n
}

func TestSelectHonorsForcedMask(t *testing.T) {
	a := storeVec(t, 4)
	assert.Equal(t, CPU, Select(a, MaskCPU, DefaultDispatchThreshold))
	assert.Equal(t, GPU, Select(a, MaskGPU, DefaultDispatchThreshold))
}

func TestSelectPicksCPUForSmallCheapNode(t *testing.T) {
	a := storeVec(t, 4)
	b := storeVec(t, 4)
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	assert.Equal(t, CPU, Select(node, MaskBoth, DefaultDispatchThreshold))
}

func TestSelectPicksGPUForLargeExpensiveNode(t *testing.T) {
	a := storeVec(t, 4096)
	b := storeVec(t, 4096)
	node, err := graph.Matmul(
		mustReshape(t, a, graph.Shape{64, 64}),
		mustReshape(t, b, graph.Shape{64, 64}),
	)
	require.NoError(t, err)

	assert.Equal(t, GPU, Select(node, MaskBoth, DefaultDispatchThreshold))
}

func TestSelectBoostsTowardAlreadyMaterializedSide(t *testing.T) {
	a := storeVec(t, 300)
	b := storeVec(t, 300)
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	a.SetResult(&graph.ResultData{GPUBuffer: struct{}{}, Count: 300})
	b.SetResult(&graph.ResultData{GPUBuffer: struct{}{}, Count: 300})

	assert.Equal(t, GPU, Select(node, MaskBoth, DefaultDispatchThreshold))
}

func TestScoreMatchesSelectsInternalAccumulation(t *testing.T) {
	a := storeVec(t, 4)
	b := storeVec(t, 4)
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	assert.Equal(t, int64(1), Score(node))
}

func mustReshape(t *testing.T, n *graph.Node, shape graph.Shape) *graph.Node {
	t.Helper()
	out, err := graph.Reshape(n, shape)
	require.NoError(t, err)
	return out
}
