// optimizer.go - Optimierer ueber Embedding-Zeilen
//
// Beide Implementierungen aktualisieren ausschliesslich Zeilen der
// Embedding-Tabelle; Zeilen mit komplett null Gradient (gegatete Zeilen)
// werden uebersprungen und erhalten exakt null Update.
package trainer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/model"
)

// Optimizer applies a table gradient to the embedding rows.
type Optimizer interface {
	Name() string
	Step(m *model.Model, grad *mat.Dense) error
}

// SGD is plain gradient descent.
type SGD struct {
	LR float64
}

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) Step(m *model.Model, grad *mat.Dense) error {
	vocab, dim := grad.Dims()
	delta := make([]float64, dim)
	for id := 0; id < vocab; id++ {
		row := grad.RawRowView(id)
		if allZero(row) {
			continue
		}
		for j, g := range row {
			delta[j] = -s.LR * g
		}
		if err := m.ApplyRowUpdate(id, delta); err != nil {
			return err
		}
	}
	return nil
}

// Adam with bias correction. First and second moments are kept per
// embedding cell and allocated lazily on the first step.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	m, v *mat.Dense
	t    int
}

func (a *Adam) Name() string { return "adam" }

func (a *Adam) Step(mdl *model.Model, grad *mat.Dense) error {
	vocab, dim := grad.Dims()
	if a.m == nil {
		a.m = mat.NewDense(vocab, dim, nil)
		a.v = mat.NewDense(vocab, dim, nil)
	}
	if a.Beta1 == 0 {
		a.Beta1 = 0.9
	}
	if a.Beta2 == 0 {
		a.Beta2 = 0.999
	}
	if a.Eps == 0 {
		a.Eps = 1e-8
	}
	a.t++

	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	delta := make([]float64, dim)
	for id := 0; id < vocab; id++ {
		grow := grad.RawRowView(id)
		if allZero(grow) {
			// Gated row: no moment update either, so a later ungated
			// gradient starts from the same state as a fresh row.
			continue
		}
		mrow := a.m.RawRowView(id)
		vrow := a.v.RawRowView(id)
		for j, g := range grow {
			mrow[j] = a.Beta1*mrow[j] + (1-a.Beta1)*g
			vrow[j] = a.Beta2*vrow[j] + (1-a.Beta2)*g*g
			mhat := mrow[j] / c1
			vhat := vrow[j] / c2
			delta[j] = -a.LR * mhat / (math.Sqrt(vhat) + a.Eps)
		}
		if err := mdl.ApplyRowUpdate(id, delta); err != nil {
			return err
		}
	}
	return nil
}

func allZero(row []float64) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}
