package execlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/internal/backend"
	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

func TestRecordForSuccess(t *testing.T) {
	a, err := graph.Store(registry.NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	b, err := graph.Store(registry.NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)
	node, err := graph.Add(a, b)
	require.NoError(t, err)

	r := RecordFor(node, backend.CPU, 1, 5*time.Millisecond, nil)
	assert.Equal(t, "add", r.Op)
	assert.Equal(t, "cpu", r.Backend)
	assert.Equal(t, int64(4), r.Elements)
	assert.Equal(t, int64(5*time.Millisecond), r.DurationNanos)
	assert.True(t, r.Succeeded)
	assert.Empty(t, r.ErrMsg)
}

func TestRecordForFailureCapturesError(t *testing.T) {
	a, err := graph.Store(registry.NewBuffer(graph.Float64, 4), graph.Float64, graph.Shape{4})
	require.NoError(t, err)

	r := RecordFor(a, backend.GPU, 0, 0, assert.AnError)
	assert.False(t, r.Succeeded)
	assert.Equal(t, assert.AnError.Error(), r.ErrMsg)
	assert.Equal(t, "gpu", r.Backend)
}
