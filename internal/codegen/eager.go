package codegen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

// EagerCache deduplicates compiled-kernel-source generation across repeated
// (op, result type, parameter types) combinations, per spec §4.3's "eager
// path additionally keyed by (op, result_type, parameter_types[]) packed
// into an integer hash" — this cache uses an equivalent string key instead
// of a packed integer, which avoids bit-width assumptions about how many
// distinct element types or operations exist without changing the
// dedup semantics.
type EagerCache struct {
	mu      sync.Mutex
	sources map[string]string
}

// NewEagerCache returns an empty cache.
func NewEagerCache() *EagerCache {
	return &EagerCache{sources: make(map[string]string)}
}

// Source returns the eager kernel source for node, generating it via the
// node's registry entry on first use and reusing the cached text for any
// later node sharing the same (op, result type, parameter types) key.
func (c *EagerCache) Source(node *graph.Node) (key string, source string, err error) {
	entry, ok := registry.Get(node.Op)
	if !ok {
		return "", "", fmt.Errorf("codegen: no registry entry for op %v", node.Op)
	}

	paramTypes := make([]graph.ElementType, len(node.Predecessors))
	for i, p := range node.Predecessors {
		paramTypes[i] = p.Type
	}
	key = eagerKey(node.Op, node.Type, paramTypes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if src, ok := c.sources[key]; ok {
		return key, src, nil
	}
	src, err := entry.GenerateOCLEager(node.Type, paramTypes)
	if err != nil {
		return "", "", fmt.Errorf("codegen: eager codegen for op %v: %w", node.Op, err)
	}
	c.sources[key] = src
	return key, src, nil
}

// Len reports how many distinct kernels have been generated so far.
func (c *EagerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func eagerKey(op graph.OpKind, resultType graph.ElementType, paramTypes []graph.ElementType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:", op, registry.OCLTypeName(resultType))
	for i, t := range paramTypes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(registry.OCLTypeName(t))
	}
	return b.String()
}
