// Package cpuexec implements the CPU worker pool and topological scheduler
// that materialize a node's output, per the multiple-producer/
// multiple-consumer work queue described for the CPU backend.
package cpuexec

import (
	"runtime"
	"sync"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
	"github.com/flint-go/flint/pkg/flintlog"
)

// ParallelThreshold is the score-elements product above which a node's
// output is partitioned across workers instead of computed inline by the
// submitting goroutine.
const ParallelThreshold = 256

// task is one unit of work on the pool's queue: compute node's output over
// the half-open element range [rangeStart, rangeStart+rangeLength) into out,
// reading predecessor values from views, then signal done. A nil node is
// the poison tuple used to stop a worker.
type task struct {
	node        *graph.Node
	views       []registry.CPUView
	out         []byte
	rangeStart  int
	rangeLength int
	done        *sync.WaitGroup
	errOut      *error
	errMu       *sync.Mutex
}

// Pool is a fixed-size worker pool draining a single shared task queue.
type Pool struct {
	workers int
	queue   chan task
	wg      sync.WaitGroup
	logger  flintlog.Logger
}

// NumWorkers returns hardware_concurrency(), falling back to 8 when the
// runtime cannot report a usable CPU count.
func NumWorkers() int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 8
	}
	return n
}

// NewPool starts a pool of NumWorkers() workers, each pulling from a shared
// buffered queue until it receives a poison tuple.
func NewPool(logger flintlog.Logger) *Pool {
	if logger == nil {
		logger = flintlog.NullLogger{}
	}
	workers := NumWorkers()
	p := &Pool{
		workers: workers,
		queue:   make(chan task, workers*2),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.queue {
		if t.node == nil {
			return
		}
		entry, ok := registry.Get(t.node.Op)
		if !ok {
			p.reportErr(t, unknownOpError(t.node.Op))
			t.done.Done()
			continue
		}
		if err := entry.ExecuteCPU(t.node, t.views, t.out, t.rangeStart, t.rangeStart+t.rangeLength); err != nil {
			p.reportErr(t, err)
		}
		t.done.Done()
	}
}

func (p *Pool) reportErr(t task, err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if *t.errOut == nil {
		*t.errOut = err
	}
}

// Submit enqueues one range of node's computation. Blocks if the queue is
// full, matching the spec's blocking multiple-producer/consumer queue.
func (p *Pool) Submit(t task) {
	p.queue <- t
}

// Shutdown pushes one poison tuple per worker and waits for every worker
// goroutine to exit. Joins are unconditional, matching the spec's
// cancellation contract.
func (p *Pool) Shutdown() {
	for i := 0; i < p.workers; i++ {
		p.queue <- task{}
	}
	p.wg.Wait()
}
