package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
	"github.com/flint-go/flint/pkg/config"
)

func testConfig(t *testing.T, backendMask string) *config.Config {
	t.Helper()
	return &config.Config{
		Engine: config.EngineConfig{
			Backend:              backendMask,
			GPUDispatchThreshold: 1024,
		},
		Storage: config.StorageConfig{
			Type:      "local",
			LocalPath: t.TempDir(),
		},
		Log: config.LogConfig{Level: "error"},
	}
}

func storeVec(t *testing.T, values ...float64) *graph.Node {
	t.Helper()
	buf := registry.NewBuffer(graph.Float64, len(values))
	for i, v := range values {
		registry.WriteElement(buf, graph.Float64, i, v)
	}
	n, err := graph.Store(buf, graph.Float64, graph.Shape{len(values)})
	require.NoError(t, err)
	return n
}

func readVec(t *testing.T, r *graph.ResultData, n int) []float64 {
	t.Helper()
	out := make([]float64, n)
	for i := range out {
		out[i] = registry.ReadElement(r.CPUData, graph.Float64, i)
	}
	return out
}

func TestMaterializeOnCPU(t *testing.T) {
	e, err := New(testConfig(t, "cpu"))
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	sum, err := graph.Add(a, b)
	require.NoError(t, err)

	r, err := e.Materialize(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, readVec(t, r, 3))
}

func TestMaterializeOptimizeMemoryDemotesAndReleasesPredecessors(t *testing.T) {
	cfg := testConfig(t, "cpu")
	cfg.Engine.OptimizeMemory = true
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	sum, err := graph.Add(a, b)
	require.NoError(t, err)

	r, err := e.Materialize(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, readVec(t, r, 3))

	assert.Equal(t, graph.OpStore, sum.Op)
	assert.Nil(t, sum.Predecessors)
	assert.Equal(t, 0, a.RefCountSnapshot())
	assert.Equal(t, 0, b.RefCountSnapshot())

	// The node's own result survives demotion: re-materializing still
	// short-circuits on the cached result rather than needing predecessors.
	r2, err := e.Materialize(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, readVec(t, r2, 3))
}

func TestMaterializeOptimizeMemoryDisabledByDefault(t *testing.T) {
	e, err := New(testConfig(t, "cpu"))
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	sum, err := graph.Add(a, b)
	require.NoError(t, err)

	_, err = e.Materialize(context.Background(), sum)
	require.NoError(t, err)

	assert.NotEqual(t, graph.OpStore, sum.Op)
	assert.NotNil(t, sum.Predecessors)
}

func TestMaterializeOnGPU(t *testing.T) {
	e, err := New(testConfig(t, "gpu"))
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	sum, err := graph.Add(a, b)
	require.NoError(t, err)

	r, err := e.Materialize(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, readVec(t, r, 3))
	assert.NotNil(t, r.GPUBuffer)
}

func TestMaterializeOnGPUEagerMode(t *testing.T) {
	cfg := testConfig(t, "gpu")
	cfg.Engine.EagerExecution = true
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	c := storeVec(t, 2, 2, 2)

	sum, err := graph.Add(a, b)
	require.NoError(t, err)
	product, err := graph.Mul(sum, c)
	require.NoError(t, err)

	r, err := e.Materialize(context.Background(), product)
	require.NoError(t, err)
	assert.Equal(t, []float64{22, 44, 66}, readVec(t, r, 3))
}

func TestMaterializeOnGPUFusesMultiNodeChain(t *testing.T) {
	e, err := New(testConfig(t, "gpu"))
	require.NoError(t, err)
	defer e.Close()

	a := storeVec(t, 1, 2, 3)
	b := storeVec(t, 10, 20, 30)
	c := storeVec(t, 2, 2, 2)

	sum, err := graph.Add(a, b)
	require.NoError(t, err)
	product, err := graph.Mul(sum, c)
	require.NoError(t, err)

	r, err := e.Materialize(context.Background(), product)
	require.NoError(t, err)
	assert.Equal(t, []float64{22, 44, 66}, readVec(t, r, 3))
}

func TestGradientsMaterializesAlongTheWay(t *testing.T) {
	e, err := New(testConfig(t, "cpu"))
	require.NoError(t, err)
	defer e.Close()

	x := storeVec(t, 3)
	x.MarkAsVariable()
	squared, err := graph.Mul(x, x)
	require.NoError(t, err)

	grads, err := e.Gradients(squared, []*graph.Node{x})
	require.NoError(t, err)
	require.Len(t, grads, 1)

	r, err := e.Materialize(context.Background(), grads[0])
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, readVec(t, r, 1))
}
