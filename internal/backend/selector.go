// Package backend implements the per-node CPU/GPU dispatch heuristic of
// spec §4.6: a node's output size times its unexecuted backward cone's
// aggregate operation score times a boost ratio, compared against a fixed
// threshold.
package backend

import (
	"fmt"
	"strings"

	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

// Kind names one of the two execution backends.
type Kind int

const (
	CPU Kind = iota
	GPU
)

func (k Kind) String() string {
	if k == GPU {
		return "gpu"
	}
	return "cpu"
}

// Mask is the caller-requested set of backends available for dispatch, per
// spec §6's "backend selection bitmask".
type Mask int

const (
	MaskCPU Mask = 1 << iota
	MaskGPU
)

const MaskBoth = MaskCPU | MaskGPU

// ParseMask converts the engine config's "cpu"/"gpu"/"both" string into a
// Mask, matching pkg/config.EngineConfig.Backend's accepted values.
func ParseMask(s string) (Mask, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return MaskCPU, nil
	case "gpu":
		return MaskGPU, nil
	case "both":
		return MaskBoth, nil
	default:
		return 0, fmt.Errorf("backend: unknown mask %q, want cpu, gpu, or both", s)
	}
}

// DefaultDispatchThreshold is the spec-mandated n*score*boost ratio above
// which a "both" selection favors GPU.
const DefaultDispatchThreshold = 1024

// Select chooses a backend for materializing y, per spec §4.6. When mask
// names exactly one backend, that choice is forced; only a "both" mask
// consults the cost heuristic.
func Select(y *graph.Node, mask Mask, threshold int64) Kind {
	switch mask {
	case MaskCPU:
		return CPU
	case MaskGPU:
		return GPU
	}

	n := int64(y.Shape.Count())
	sg := int64(0)
	visited := make(map[*graph.Node]bool)
	accumulateScore(y, visited, &sg)

	cpuBoost, gpuBoost := boosts(y)
	cost := n * sg * gpuBoost / cpuBoost
	if cost >= threshold {
		return GPU
	}
	return CPU
}

// Score sums operation_score over y's unexecuted backward cone, exposed
// separately from Select so callers (internal/engine's telemetry) can
// record the value that drove a dispatch decision.
func Score(y *graph.Node) int64 {
	var sg int64
	visited := make(map[*graph.Node]bool)
	accumulateScore(y, visited, &sg)
	return sg
}

// accumulateScore sums operation_score over y's unexecuted backward cone:
// y itself plus every predecessor reachable without crossing a node that
// has already been materialized (its cost has already been paid).
func accumulateScore(n *graph.Node, visited map[*graph.Node]bool, sg *int64) {
	if n == nil || visited[n] {
		return
	}
	visited[n] = true
	if n.HasResult() {
		return
	}

	entry, ok := registry.Get(n.Op)
	if ok {
		*sg += int64(entry.Score)
	}
	for _, p := range n.Predecessors {
		accumulateScore(p, visited, sg)
	}
}

// boosts computes the CPU and GPU boost factors for y: each starts at 1 and
// is doubled for every direct predecessor whose materialized result
// already lives on that side, per spec §4.6's "doubled in favor of
// whichever side already holds each predecessor's buffers".
func boosts(y *graph.Node) (cpuBoost, gpuBoost int64) {
	cpuBoost, gpuBoost = 1, 1
	for _, p := range y.Predecessors {
		r := p.ResultSnapshot()
		if r == nil {
			continue
		}
		if r.CPUData != nil {
			cpuBoost *= 2
		}
		if r.GPUBuffer != nil {
			gpuBoost *= 2
		}
	}
	return cpuBoost, gpuBoost
}
