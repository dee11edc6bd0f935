package graph

import "github.com/flint-go/flint/pkg/ferrors"

// Builder wraps the package-level constructor functions with the
// null-propagating chaining contract described in spec §7: every
// constructor call records its outcome in errState, and a builder method
// that receives a nil node (because an earlier call in the chain failed)
// short-circuits to nil without touching errState again, so the first
// failure in a chain is the one that is reported.
//
// Package-level functions (Add, Matmul, Reshape, ...) are the underlying
// implementation and are used directly by tests and by code (like
// internal/autograd) that wants a Go-idiomatic (*Node, error) return
// instead of the chaining contract.
type Builder struct {
	errState *ferrors.State
}

// NewBuilder creates a chaining Builder that reports failures into state.
// If state is nil, the package-level default state is used.
func NewBuilder(state *ferrors.State) *Builder {
	if state == nil {
		state = ferrors.Default()
	}
	return &Builder{errState: state}
}

// LastError returns the most recent error recorded on this builder's state.
func (b *Builder) LastError() *ferrors.FlintError {
	return b.errState.Last()
}

// record is called by every Builder method with the (node, err) pair a
// package-level constructor returned; it updates errState and normalizes
// the return to nil on error.
func (b *Builder) record(n *Node, err error) *Node {
	if err != nil {
		if fe, ok := err.(*ferrors.FlintError); ok {
			b.errState.Set(fe)
		} else {
			b.errState.Set(ferrors.Wrap(ferrors.InternalError, "unexpected error", err))
		}
		return nil
	}
	return n
}

// anyNil reports whether any of nodes is nil, the signal that an earlier
// builder call in the chain already failed.
func anyNil(nodes ...*Node) bool {
	for _, n := range nodes {
		if n == nil {
			return true
		}
	}
	return false
}
