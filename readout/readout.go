// Package readout maps model output to a small set of topic-class
// logits, including the forgotten class. It is a pure, parameter-frozen
// function: no variant mutates state, and the pooling rule (mean over
// sequence positions) is identical on every invocation.
//
// Two interchangeable variants exist, modeled as an explicit tag:
//
//   - Derived: class logits are log-sum-exp reductions of the
//     output-projection logits over a vocabulary partition. No learnable
//     parameters; structurally identical to the generation projection.
//   - Detached: a small linear head over the pooled hidden state, fit
//     once before unlearning and frozen afterwards.
package readout

import (
	"gonum.org/v1/gonum/mat"
)

// Kind tags the readout variant. The trainer dispatches on the tag
// rather than on structural assumptions about representation alignment.
type Kind int

const (
	KindDerived Kind = iota
	KindDetached
)

func (k Kind) String() string {
	switch k {
	case KindDerived:
		return "derived"
	case KindDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Grad carries the cotangents produced by a readout backward pass.
type Grad struct {
	// Hidden is dL/dhidden (same shape as the forward hidden states).
	Hidden *mat.Dense

	// Embedding is dL/dE through the projection path (vocab x dim).
	// Nil for the detached variant, whose head does not touch the table.
	Embedding *mat.Dense
}

// Readout produces K class logits from hidden states.
type Readout interface {
	Kind() Kind
	Classes() int
	Forgotten() int

	// Logits pools the hidden states and returns K class logits.
	Logits(hidden *mat.Dense) []float64

	// Backward maps a cotangent of the class logits to cotangents of the
	// hidden states and, for the derived variant, of the embedding table.
	Backward(hidden *mat.Dense, gradClass []float64) (*Grad, error)
}
