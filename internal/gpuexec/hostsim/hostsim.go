// Package hostsim is an in-process stand-in for an OpenCL driver: it
// implements internal/gpuexec's Device/Context/CommandQueue/Program/Kernel/
// Buffer interfaces without any real device, so the dual-backend dispatch
// and synchronization logic above it (internal/backend, the future GPU
// executor) can be exercised in tests that never touch real hardware — the
// same role internal/mock's testify doubles play for the storage/service
// boundary, except hostsim must also compute the right numbers, since the
// backend selector's whole premise is that CPU and GPU produce identical
// results.
//
// hostsim cannot compile the text internal/codegen emits; the generated
// OpenCL-flavored source is kept on the Program for logging and kernel-cache
// keying only (spec §4.3's cache is keyed on source text), and execution is
// performed by replaying the fused sub-DAG's own operation-registry CPU
// kernels in topological order instead of interpreting the source. A real
// driver binding would parse and compile source directly; hostsim's
// NewFusedProgram is the seam a future such binding does not need.
package hostsim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/gpuexec"
	"github.com/flint-go/flint/internal/registry"
)

// Backend discovers hostsim's single synthetic device.
type Backend struct{}

// NewBackend returns a Backend exposing one simulated device.
func NewBackend() *Backend { return &Backend{} }

func (Backend) Devices() ([]gpuexec.Device, error) {
	return []gpuexec.Device{&device{}}, nil
}

// device is hostsim's one simulated compute device. ComputeUnits is a fixed
// stand-in value; there is no real hardware to query.
type device struct{}

func (d *device) Name() string      { return "hostsim0" }
func (d *device) ComputeUnits() int { return 1 }
func (d *device) NewContext() (gpuexec.Context, error) {
	return &Context{}, nil
}

var nextBufferID uint64

// Context allocates buffers and programs in host memory. There is nothing
// to release.
type Context struct{}

func (c *Context) NewBuffer(size int) (gpuexec.Buffer, error) {
	return &buffer{id: atomic.AddUint64(&nextBufferID, 1), data: make([]byte, size)}, nil
}

// NewProgram exists to satisfy gpuexec.Context but cannot be used: hostsim
// has no compiler for the generated source text. Callers that know they are
// talking to hostsim must use NewFusedProgram instead, which carries the
// graph structure execution actually needs.
func (c *Context) NewProgram(source string) (gpuexec.Program, error) {
	return nil, fmt.Errorf("hostsim: cannot compile kernel source directly; use NewFusedProgram")
}

// NewFusedProgram builds a Program for the fused sub-DAG whose nodes are
// listed in nodes (topological order, root last) and whose external inputs
// are leafParams (in the same order the generated kernel's parameter list
// binds them, per spec §4.4's "Store/constant/result nodes become kernel
// parameters P0, P1, ..."). source is retained only for Source() and kernel
// cache keying.
func (c *Context) NewFusedProgram(source string, nodes, leafParams []*graph.Node) (gpuexec.Program, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("hostsim: fused program has no nodes")
	}
	for _, n := range nodes {
		if _, ok := registry.Get(n.Op); !ok {
			return nil, fmt.Errorf("hostsim: no registry entry for op %v", n.Op)
		}
	}
	return &program{source: source, nodes: nodes, leafParams: leafParams}, nil
}

func (c *Context) NewQueue() (gpuexec.CommandQueue, error) {
	return &queue{}, nil
}

func (c *Context) Release() {}

// buffer is a plain host-memory allocation standing in for device memory.
type buffer struct {
	id   uint64
	data []byte
}

func (b *buffer) ID() uint64 { return b.id }
func (b *buffer) Size() int  { return len(b.data) }

// program is a fused sub-DAG: nodes is its topological evaluation order
// (root last), leafParams are its external (already-materialized) inputs in
// kernel-parameter order.
type program struct {
	source     string
	nodes      []*graph.Node
	leafParams []*graph.Node
}

func (p *program) Source() string { return p.source }

func (p *program) Kernel(name string) (gpuexec.Kernel, error) {
	return &kernel{name: name, program: p}, nil
}

// kernel binds one result buffer (arg 0) and one buffer per leafParams
// entry (args 1..), matching spec §4.3's result-first argument order.
type kernel struct {
	name    string
	program *program
	args    []*buffer
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, value interface{}) error {
	buf, ok := value.(*buffer)
	if !ok {
		return fmt.Errorf("hostsim: kernel arg %d is not a hostsim buffer", index)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = buf
	return nil
}

// queue serializes kernel launches and transfers through a single mutex,
// modeling spec §5's single command queue; Enqueue runs synchronously so
// Finish has nothing outstanding to wait for.
type queue struct {
	mu sync.Mutex
}

func (q *queue) Write(ctx context.Context, buf gpuexec.Buffer, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("hostsim: not a hostsim buffer")
	}
	copy(b.data, data)
	return nil
}

func (q *queue) Read(ctx context.Context, buf gpuexec.Buffer, out []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("hostsim: not a hostsim buffer")
	}
	copy(out, b.data)
	return nil
}

// Enqueue evaluates the kernel's fused sub-DAG in topological order,
// reading leaf inputs from k.args[1:] and writing the final node's output
// into k.args[0], replaying each intermediate node's own CPU kernel
// (internal/registry's ExecuteCPU) exactly as internal/cpuexec would.
func (q *queue) Enqueue(ctx context.Context, k gpuexec.Kernel, globalSize int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kk, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("hostsim: not a hostsim kernel")
	}
	if len(kk.args) == 0 || kk.args[0] == nil {
		return fmt.Errorf("hostsim: kernel %q missing result buffer (arg 0)", kk.name)
	}
	p := kk.program

	leafBufs := make(map[*graph.Node][]byte, len(p.leafParams))
	for i, leaf := range p.leafParams {
		argIdx := i + 1
		if argIdx >= len(kk.args) || kk.args[argIdx] == nil {
			return fmt.Errorf("hostsim: kernel %q missing arg %d for leaf param", kk.name, argIdx)
		}
		leafBufs[leaf] = kk.args[argIdx].data
	}

	temps := make(map[*graph.Node][]byte, len(p.nodes))
	lookup := func(n *graph.Node) ([]byte, bool) {
		if b, ok := leafBufs[n]; ok {
			return b, true
		}
		if b, ok := temps[n]; ok {
			return b, true
		}
		return nil, false
	}

	root := p.nodes[len(p.nodes)-1]
	for idx, n := range p.nodes {
		entry, ok := registry.Get(n.Op)
		if !ok {
			return fmt.Errorf("hostsim: no registry entry for op %v", n.Op)
		}
		views := make([]registry.CPUView, len(n.Predecessors))
		for i, pred := range n.Predecessors {
			data, ok := lookup(pred)
			if !ok {
				return fmt.Errorf("hostsim: kernel %q: predecessor of node op %v not bound", kk.name, n.Op)
			}
			views[i] = registry.CPUView{Data: data, Type: pred.Type, Shape: pred.Shape}
		}

		var out []byte
		if n == root {
			out = kk.args[0].data
		} else {
			out = registry.NewBuffer(n.Type, n.Shape.Count())
			temps[n] = out
		}

		count := n.Shape.Count()
		if idx == len(p.nodes)-1 {
			count = globalSize
		}
		if err := entry.ExecuteCPU(n, views, out, 0, count); err != nil {
			return fmt.Errorf("hostsim: kernel %q: %w", kk.name, err)
		}
	}
	return nil
}

func (q *queue) Finish() error { return nil }
func (q *queue) Release()      {}
