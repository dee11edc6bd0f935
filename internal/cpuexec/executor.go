package cpuexec

import (
	"fmt"
	"sync"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
	"github.com/flint-go/flint/pkg/flintlog"
)

// Executor materializes nodes on the CPU worker pool, following the
// topological scheduler and buffer-reuse rules.
type Executor struct {
	pool   *Pool
	logger flintlog.Logger
}

// New creates an Executor backed by a freshly started worker pool.
func New(logger flintlog.Logger) *Executor {
	if logger == nil {
		logger = flintlog.NullLogger{}
	}
	return &Executor{pool: NewPool(logger), logger: logger}
}

// Close shuts the underlying worker pool down. Safe to call once, after
// which the Executor must not be used again.
func (e *Executor) Close() {
	e.pool.Shutdown()
}

// Materialize computes sink's result (and, transitively, every
// unmaterialized predecessor's), returning sink's ResultData.
func (e *Executor) Materialize(sink *graph.Node) (*graph.ResultData, error) {
	for _, n := range topoOrder(sink) {
		if n.HasResult() {
			continue
		}
		if err := e.materializeOne(n); err != nil {
			return nil, err
		}
	}
	return sink.ResultSnapshot(), nil
}

func (e *Executor) materializeOne(n *graph.Node) error {
	entry, ok := registry.Get(n.Op)
	if !ok {
		return unknownOpError(n.Op)
	}

	views := make([]registry.CPUView, len(n.Predecessors))
	for i, p := range n.Predecessors {
		r := p.ResultSnapshot()
		if r == nil || r.CPUData == nil {
			return fmt.Errorf("cpuexec: predecessor of node op %v has no CPU buffer materialized", n.Op)
		}
		views[i] = registry.CPUView{Data: r.CPUData, Type: p.Type, Shape: p.Shape}
	}

	out, stolen := e.reuseBuffer(n, entry)
	if out == nil {
		out = registry.NewBuffer(n.Type, n.Shape.Count())
	}

	count := n.Shape.Count()
	if entry.Score*count >= ParallelThreshold && count >= e.pool.workers {
		if err := e.runParallel(n, views, out, count); err != nil {
			return err
		}
	} else {
		if err := entry.ExecuteCPU(n, views, out, 0, count); err != nil {
			return err
		}
	}

	n.SetResult(&graph.ResultData{CPUData: out, Count: count})
	if stolen != nil {
		stolen.Consumed = true
	}
	return nil
}

// reuseBuffer returns the predecessor buffer to write node's output into,
// if any predecessor qualifies, along with that predecessor's ResultData so
// the caller can mark it consumed. Per spec: the registry must offer reuse
// for that input index, the predecessor must have reference count 1, must
// not be a store node, and must not have been marked as a gradient source.
func (e *Executor) reuseBuffer(n *graph.Node, entry registry.Entry) ([]byte, *graph.ResultData) {
	for i, p := range n.Predecessors {
		if !entry.ReuseParameter(n, i) {
			continue
		}
		if p.RefCount != 1 || p.Op == graph.OpStore || p.IsVariable {
			continue
		}
		r := p.ResultSnapshot()
		if r == nil || r.CPUData == nil || r.Consumed {
			continue
		}
		return r.CPUData, r
	}
	return nil, nil
}

func (e *Executor) runParallel(n *graph.Node, views []registry.CPUView, out []byte, count int) error {
	workers := e.pool.workers
	chunk := (count + workers - 1) / workers

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < count; start += chunk {
		length := chunk
		if start+length > count {
			length = count - start
		}
		wg.Add(1)
		e.pool.Submit(task{
			node:        n,
			views:       views,
			out:         out,
			rangeStart:  start,
			rangeLength: length,
			done:        &wg,
			errOut:      &firstErr,
			errMu:       &mu,
		})
	}
	wg.Wait()
	return firstErr
}
