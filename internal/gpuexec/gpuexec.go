// Package gpuexec defines the portable compute-device API spec §4.3 builds
// the GPU executor against: device discovery, a context owning buffers and
// programs, and a single command queue serializing kernel launches and
// transfers. The shape mirrors an OpenCL host API (device/context/queue/
// program/kernel/buffer) closely enough that a real driver binding could
// implement it; internal/gpuexec/hostsim is the in-process stand-in used
// when no such driver is present.
package gpuexec

import (
	"context"
	"errors"
)

// ErrNoDevices is returned by SelectDevice when a Backend reports zero
// devices.
var ErrNoDevices = errors.New("gpuexec: no compute devices available")

// Buffer is an opaque device memory allocation.
type Buffer interface {
	ID() uint64
	Size() int
}

// Kernel is a named entry point within a Program. Arguments are bound by
// index before the kernel is enqueued: index 0 is always the result
// buffer, per spec §4.3 step 4 ("result first, parameters next").
type Kernel interface {
	Name() string
	SetArg(index int, value interface{}) error
}

// Program is a compiled unit of kernel source, as produced by
// internal/codegen's lazy fusion pass or its eager per-op generator.
type Program interface {
	Source() string
	Kernel(name string) (Kernel, error)
}

// CommandQueue serializes kernel launches and buffer transfers against one
// context, per spec §5's single-queue scheduling model: Enqueue is
// non-blocking with respect to the device, Finish is the happens-before
// barrier subsequent host reads and buffer frees depend on.
type CommandQueue interface {
	Write(ctx context.Context, buf Buffer, data []byte) error
	Enqueue(ctx context.Context, k Kernel, globalSize int) error
	Read(ctx context.Context, buf Buffer, out []byte) error
	Finish() error
	Release()
}

// Context owns buffer and program allocation against one Device.
type Context interface {
	NewBuffer(size int) (Buffer, error)
	NewProgram(source string) (Program, error)
	NewQueue() (CommandQueue, error)
	Release()
}

// Device is one compute device a Backend discovered.
type Device interface {
	Name() string
	ComputeUnits() int
	NewContext() (Context, error)
}

// Backend discovers the devices available to it.
type Backend interface {
	Devices() ([]Device, error)
}

// SelectDevice picks the device with the highest compute-unit count, per
// spec §4.3's device-discovery step.
func SelectDevice(b Backend) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.ComputeUnits() > best.ComputeUnits() {
			best = d
		}
	}
	return best, nil
}
