// detached.go - Readout-Variante "detached"
//
// Ein kleiner linearer Kopf ueber dem gemittelten Hidden-State.
// Fit trainiert ihn einmal vor dem Unlearning (multinomiale logistische
// Regression per Gradient Descent); danach ist er eingefroren und jede
// weitere Fit-Anfrage ein Fehler. Durch den Kopf fliessen nie Gradienten
// in die Embedding-Tabelle.
package readout

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/types/errtypes"
)

type Detached struct {
	w         *mat.Dense // K x dim
	b         []float64  // K
	forgotten int
	frozen    bool
}

// NewDetached erstellt einen untrainierten Kopf mit kleinen,
// deterministisch initialisierten Gewichten.
func NewDetached(classes, dim, forgotten int, seed int64) (*Detached, error) {
	if classes < 2 {
		return nil, &errtypes.ConfigError{Field: "classes", Reason: fmt.Sprintf("need at least 2 classes, got %d", classes)}
	}
	if forgotten < 0 || forgotten >= classes {
		return nil, &errtypes.ConfigError{Field: "forgotten", Reason: fmt.Sprintf("class %d outside [0,%d)", forgotten, classes)}
	}
	if dim <= 0 {
		return nil, &errtypes.ConfigError{Field: "dim", Reason: "dimension must be positive"}
	}

	rng := rand.New(rand.NewSource(seed))
	w := mat.NewDense(classes, dim, nil)
	for i := 0; i < classes; i++ {
		for j := 0; j < dim; j++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return &Detached{w: w, b: make([]float64, classes), forgotten: forgotten}, nil
}

func (d *Detached) Kind() Kind     { return KindDetached }
func (d *Detached) Classes() int   { r, _ := d.w.Dims(); return r }
func (d *Detached) Forgotten() int { return d.forgotten }
func (d *Detached) Frozen() bool   { return d.frozen }

// Fit trainiert den Kopf auf gepoolten Hidden-Repraesentationen und
// friert ihn anschliessend ein.
func (d *Detached) Fit(pooled [][]float64, labels []int, epochs int, lr float64) error {
	if d.frozen {
		return fmt.Errorf("detached readout already frozen")
	}
	if len(pooled) == 0 || len(pooled) != len(labels) {
		return fmt.Errorf("fit: %d examples, %d labels", len(pooled), len(labels))
	}
	k, dim := d.w.Dims()
	for i, h := range pooled {
		if len(h) != dim {
			return fmt.Errorf("fit: example %d has dimension %d, want %d", i, len(h), dim)
		}
		if labels[i] < 0 || labels[i] >= k {
			return fmt.Errorf("fit: label %d outside [0,%d)", labels[i], k)
		}
	}

	logits := make([]float64, k)
	probs := make([]float64, k)
	inv := 1 / float64(len(pooled))
	for epoch := 0; epoch < epochs; epoch++ {
		for i, h := range pooled {
			d.headLogits(h, logits)
			ml.Softmax(probs, logits)
			probs[labels[i]] -= 1
			for c := 0; c < k; c++ {
				g := probs[c] * inv
				row := d.w.RawRowView(c)
				floats.AddScaled(row, -lr*g, h)
				d.b[c] -= lr * g
			}
		}
	}

	d.frozen = true
	return nil
}

func (d *Detached) headLogits(h, dst []float64) {
	k, _ := d.w.Dims()
	for c := 0; c < k; c++ {
		dst[c] = floats.Dot(d.w.RawRowView(c), h) + d.b[c]
	}
}

func (d *Detached) Logits(hidden *mat.Dense) []float64 {
	pooled := ml.MeanPool(hidden)
	out := make([]float64, d.Classes())
	d.headLogits(pooled, out)
	return out
}

// Backward: dL/dh_pooled = W^T g, gleichmaessig auf die Positionen
// verteilt. Kein Embedding-Anteil.
func (d *Detached) Backward(hidden *mat.Dense, gradClass []float64) (*Grad, error) {
	k, dim := d.w.Dims()
	if len(gradClass) != k {
		return nil, fmt.Errorf("gradient length %d, want %d classes", len(gradClass), k)
	}

	gh := make([]float64, dim)
	for c := 0; c < k; c++ {
		floats.AddScaled(gh, gradClass[c], d.w.RawRowView(c))
	}

	T, _ := hidden.Dims()
	gradH := mat.NewDense(T, dim, nil)
	inv := 1 / float64(T)
	for t := 0; t < T; t++ {
		row := gradH.RawRowView(t)
		for j := range row {
			row[j] = gh[j] * inv
		}
	}
	return &Grad{Hidden: gradH}, nil
}
