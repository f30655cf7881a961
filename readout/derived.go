// derived.go - Readout-Variante "derived"
//
// Die Klassen-Logits entstehen direkt aus den Vokabular-Logits der
// aktuellen Embedding-Tabelle: Logit der Klasse k ist der Log-Sum-Exp
// ueber die Tokens der Partition S_k. Der Readout ist damit strukturell
// identisch zur Generations-Projektion; ein Repraesentations-Mismatch
// ist per Konstruktion ausgeschlossen.
package readout

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/model"
	"github.com/lethe-ml/lethe/types/errtypes"
)

// Derived reads class logits off the output-projection logits.
// It holds the model handle with declared read-only access.
type Derived struct {
	m         *model.Model
	partition [][]int
	class     []int // token id -> class index
	forgotten int
}

// NewDerived validiert die Partition (disjunkt, deckt das Vokabular ab)
// und die Forgotten-Class.
func NewDerived(m *model.Model, partition [][]int, forgotten int) (*Derived, error) {
	k := len(partition)
	if k < 2 {
		return nil, &errtypes.ConfigError{Field: "partition", Reason: fmt.Sprintf("need at least 2 classes, got %d", k)}
	}
	if forgotten < 0 || forgotten >= k {
		return nil, &errtypes.ConfigError{Field: "forgotten", Reason: fmt.Sprintf("class %d outside [0,%d)", forgotten, k)}
	}

	class := make([]int, m.Vocab())
	for i := range class {
		class[i] = -1
	}
	for c, subset := range partition {
		if len(subset) == 0 {
			return nil, &errtypes.ConfigError{Field: "partition", Reason: fmt.Sprintf("class %d is empty", c)}
		}
		for _, id := range subset {
			if id < 0 || id >= m.Vocab() {
				return nil, &errtypes.ConfigError{Field: "partition", Reason: fmt.Sprintf("token %d outside vocabulary", id)}
			}
			if class[id] != -1 {
				return nil, &errtypes.ConfigError{Field: "partition", Reason: fmt.Sprintf("token %d in classes %d and %d", id, class[id], c)}
			}
			class[id] = c
		}
	}
	for id, c := range class {
		if c == -1 {
			return nil, &errtypes.ConfigError{Field: "partition", Reason: fmt.Sprintf("token %d not covered", id)}
		}
	}

	return &Derived{m: m, partition: partition, class: class, forgotten: forgotten}, nil
}

func (d *Derived) Kind() Kind     { return KindDerived }
func (d *Derived) Classes() int   { return len(d.partition) }
func (d *Derived) Forgotten() int { return d.forgotten }

// Logits: z_k = logsumexp_{v in S_k} (E_v . pooled(h))
func (d *Derived) Logits(hidden *mat.Dense) []float64 {
	pooled := ml.MeanPool(hidden)
	vocabLogits := d.m.TableLogits(pooled)

	out := make([]float64, len(d.partition))
	buf := make([]float64, 0, len(vocabLogits))
	for c, subset := range d.partition {
		buf = buf[:0]
		for _, id := range subset {
			buf = append(buf, vocabLogits[id])
		}
		out[c] = ml.LogSumExp(buf)
	}
	return out
}

// Backward. Mit h = pooled hidden, s_v = Softmax der Vokabular-Logits
// innerhalb der eigenen Klasse:
//
//	dz_k/dE_v = s_v * h     (v in S_k)
//	dz_k/dh   = sum_{v in S_k} s_v E_v
//
// Der Hidden-Anteil verteilt sich gleichmaessig auf die Positionen
// (Mean-Pooling).
func (d *Derived) Backward(hidden *mat.Dense, gradClass []float64) (*Grad, error) {
	if len(gradClass) != len(d.partition) {
		return nil, fmt.Errorf("gradient length %d, want %d classes", len(gradClass), len(d.partition))
	}

	pooled := ml.MeanPool(hidden)
	vocabLogits := d.m.TableLogits(pooled)

	// w_v = gradClass[class(v)] * softmax-within-class(v)
	w := make([]float64, len(vocabLogits))
	buf := make([]float64, 0, len(vocabLogits))
	for c, subset := range d.partition {
		buf = buf[:0]
		for _, id := range subset {
			buf = append(buf, vocabLogits[id])
		}
		lse := ml.LogSumExp(buf)
		for _, id := range subset {
			w[id] = gradClass[c] * math.Exp(vocabLogits[id]-lse)
		}
	}

	vocab := d.m.Vocab()
	dim := d.m.Dim()
	T, _ := hidden.Dims()

	// Projektion-Pfad: dL/dE = w (outer) h.
	gradE := mat.NewDense(vocab, dim, nil)
	gradE.Outer(1, mat.NewVecDense(vocab, w), mat.NewVecDense(dim, pooled))

	// Hidden-Pfad: dL/dh_pooled = E^T w, gleichmaessig auf T Positionen.
	ghVec := mat.NewVecDense(dim, nil)
	ghVec.MulVec(d.m.Table().T(), mat.NewVecDense(vocab, w))
	gradH := mat.NewDense(T, dim, nil)
	inv := 1 / float64(T)
	for t := 0; t < T; t++ {
		row := gradH.RawRowView(t)
		for j := range row {
			row[j] = ghVec.AtVec(j) * inv
		}
	}

	return &Grad{Hidden: gradH, Embedding: gradE}, nil
}
