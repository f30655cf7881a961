// math.go - Numerisch stabile Grundoperationen
//
// Enthaelt:
// - LogSumExp, Softmax, LogSoftmax (stabil via Max-Shift)
// - KLDiv (Kullback-Leibler-Divergenz zweier Verteilungen)
// - MeanPool (Mittelung ueber Sequenzpositionen)
// - Finite (Pruefung auf NaN/Inf)
package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogSumExp computes log(sum(exp(x))) with the usual max shift.
// Returns -Inf for an empty slice.
func LogSumExp(x []float64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	max := floats.Max(x)
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

// Softmax writes the softmax of logits into dst and returns it.
// dst may alias logits.
func Softmax(dst, logits []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(logits))
	}
	lse := LogSumExp(logits)
	for i, v := range logits {
		dst[i] = math.Exp(v - lse)
	}
	return dst
}

// LogSoftmax writes log-softmax of logits into dst and returns it.
func LogSoftmax(dst, logits []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(logits))
	}
	lse := LogSumExp(logits)
	for i, v := range logits {
		dst[i] = v - lse
	}
	return dst
}

// KLDiv computes KL(p || q) for probability vectors p and q.
// Terms with p[i] == 0 contribute zero. q is floored to avoid log(0).
func KLDiv(p, q []float64) float64 {
	const floor = 1e-12
	var sum float64
	for i, pi := range p {
		if pi <= 0 {
			continue
		}
		qi := q[i]
		if qi < floor {
			qi = floor
		}
		sum += pi * math.Log(pi/qi)
	}
	return sum
}

// MeanPool averages the rows of a T x dim matrix into a single vector.
func MeanPool(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	for t := 0; t < rows; t++ {
		floats.Add(out, m.RawRowView(t))
	}
	floats.Scale(1/float64(rows), out)
	return out
}

// Finite reports whether every element of x is finite.
func Finite(x ...float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
