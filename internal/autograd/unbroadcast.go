package autograd

import "github.com/flint-go/flint/internal/graph"

// unbroadcast reconciles a local-gradient result against the shape of the
// predecessor it flows back to, undoing whatever broadcasting the forward
// operation applied: extra leading axes are summed away, missing axes are
// reinserted as size-1 dims, and any axis still mismatched (forward op
// broadcast a size-1 axis up to the predecessor's neighbor) is summed and
// re-expanded back to size 1.
func unbroadcast(g *graph.Node, target graph.Shape) (*graph.Node, error) {
	for g.Shape.Rank() > target.Rank() {
		reduced, err := graph.ReduceSum(g, 0)
		if err != nil {
			return nil, err
		}
		g = reduced
	}

	if g.Shape.Rank() < target.Rank() {
		offset := target.Rank() - g.Shape.Rank()
		padded := make(graph.Shape, target.Rank())
		for i := 0; i < offset; i++ {
			padded[i] = 1
		}
		copy(padded[offset:], g.Shape)
		reshaped, err := graph.Reshape(g, padded)
		if err != nil {
			return nil, err
		}
		g = reshaped
	}

	for axis := 0; axis < target.Rank(); axis++ {
		if target[axis] == 1 && g.Shape[axis] != 1 {
			reduced, err := graph.ReduceSum(g, axis)
			if err != nil {
				return nil, err
			}
			expanded, err := graph.Expand(reduced, axis, 1)
			if err != nil {
				return nil, err
			}
			g = expanded
		}
	}

	needsRepeat := false
	counts := make([]int, target.Rank())
	for i := range counts {
		counts[i] = 1
		if g.Shape[i] != target[i] {
			counts[i] = target[i]
			needsRepeat = true
		}
	}
	if needsRepeat {
		repeated, err := graph.Repeat(g, counts)
		if err != nil {
			return nil, err
		}
		g = repeated
	}

	return g, nil
}
