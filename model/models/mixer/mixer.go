// Package mixer implements a small deterministic reference transformer:
// causal mean token mixing followed by a residual tanh MLP. Weights are
// drawn once from a seeded source and frozen; the backward pass is
// derived by hand and exposed through the VJP contract.
//
// The package exists so the unlearning pipeline can run end to end
// without an external model runtime. Real deployments plug their own
// ml.Transformer implementation in instead.
package mixer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
)

type Config struct {
	Dim    int
	Hidden int
	Seed   int64

	// Scale controls the weight magnitude of the MLP branch. Small values
	// keep the block close to the identity, which is what the reference
	// model wants: the interesting signal lives in the embeddings.
	Scale float64
}

type Mixer struct {
	dim, hidden int
	w1          *mat.Dense // hidden x dim
	w2          *mat.Dense // dim x hidden
}

// New baut einen Mixer mit deterministisch initialisierten, danach
// eingefrorenen Gewichten.
func New(cfg Config) (*Mixer, error) {
	if cfg.Dim <= 0 || cfg.Hidden <= 0 {
		return nil, fmt.Errorf("mixer: dim and hidden must be positive")
	}
	scale := cfg.Scale
	if scale == 0 {
		scale = 0.1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	w1 := mat.NewDense(cfg.Hidden, cfg.Dim, nil)
	w2 := mat.NewDense(cfg.Dim, cfg.Hidden, nil)
	std1 := scale / math.Sqrt(float64(cfg.Dim))
	std2 := scale / math.Sqrt(float64(cfg.Hidden))
	for i := 0; i < cfg.Hidden; i++ {
		for j := 0; j < cfg.Dim; j++ {
			w1.Set(i, j, rng.NormFloat64()*std1)
		}
	}
	for i := 0; i < cfg.Dim; i++ {
		for j := 0; j < cfg.Hidden; j++ {
			w2.Set(i, j, rng.NormFloat64()*std2)
		}
	}

	return &Mixer{dim: cfg.Dim, hidden: cfg.Hidden, w1: w1, w2: w2}, nil
}

func (m *Mixer) Dim() int { return m.dim }

// Params gibt Kopien der eingefrorenen Gewichte zurueck (z.B. fuer
// Parameter-Isolations-Checks).
func (m *Mixer) Params() []*mat.Dense {
	return []*mat.Dense{mat.DenseCopyOf(m.w1), mat.DenseCopyOf(m.w2)}
}

// Forward:
//
//	u_t = mean(x_0..x_t)            (causal mean mixing)
//	z   = tanh(u W1^T)              (T x hidden)
//	y   = u + z W2^T                (residual MLP)
//
// Der VJP kehrt die drei Stufen exakt um.
func (m *Mixer) Forward(ctx context.Context, embeds *mat.Dense) (*mat.Dense, ml.VJP, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	T, d := embeds.Dims()
	if d != m.dim {
		return nil, nil, fmt.Errorf("mixer: input dimension %d, want %d", d, m.dim)
	}

	// Causal mean mixing.
	u := mat.NewDense(T, d, nil)
	acc := make([]float64, d)
	for t := 0; t < T; t++ {
		row := embeds.RawRowView(t)
		for j, v := range row {
			acc[j] += v
		}
		inv := 1 / float64(t+1)
		urow := u.RawRowView(t)
		for j := range urow {
			urow[j] = acc[j] * inv
		}
	}

	// Residual tanh MLP.
	var a mat.Dense
	a.Mul(u, m.w1.T()) // T x hidden
	z := mat.NewDense(T, m.hidden, nil)
	for t := 0; t < T; t++ {
		arow := a.RawRowView(t)
		zrow := z.RawRowView(t)
		for j, v := range arow {
			zrow[j] = math.Tanh(v)
		}
	}
	y := mat.NewDense(T, d, nil)
	y.Mul(z, m.w2.T())
	y.Add(y, u)

	vjp := func(gy *mat.Dense) *mat.Dense {
		// gz = gy W2, ga = gz * (1 - z^2), gu = gy + ga W1
		var gz mat.Dense
		gz.Mul(gy, m.w2)
		ga := mat.NewDense(T, m.hidden, nil)
		for t := 0; t < T; t++ {
			zrow := z.RawRowView(t)
			gzrow := gz.RawRowView(t)
			garow := ga.RawRowView(t)
			for j := range garow {
				garow[j] = gzrow[j] * (1 - zrow[j]*zrow[j])
			}
		}
		gu := mat.NewDense(T, d, nil)
		gu.Mul(ga, m.w1)
		gu.Add(gu, gy)

		// Umkehrung des causal mean mixing:
		// gx_s = sum_{t >= s} gu_t / (t+1), per Suffix-Summe.
		gx := mat.NewDense(T, d, nil)
		suffix := make([]float64, d)
		for t := T - 1; t >= 0; t-- {
			inv := 1 / float64(t+1)
			gurow := gu.RawRowView(t)
			for j, v := range gurow {
				suffix[j] += v * inv
			}
			gx.SetRow(t, suffix)
		}
		return gx
	}

	return y, vjp, nil
}
