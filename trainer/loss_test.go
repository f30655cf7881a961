// loss_test.go - Tests fuer Forget-/Retain-Pass und Gradient-Gating
package trainer

import (
	"context"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/model"
)

// TestRetainPassZeroAtInit: solange Student und Teacher identisch sind,
// ist der Retain-Loss exakt 0 und der Gradient die Nullmatrix.
func TestRetainPassZeroAtInit(t *testing.T) {
	f := newFixture(t, model.TieShared)
	tr, err := New(f.model, f.readout, f.config(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := tr.Init(ctx); err != nil {
		t.Fatal(err)
	}

	batch, _ := f.source.RetainBatch(ctx, 0)
	res, err := tr.retainPass(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}

	if res.loss != 0 {
		t.Errorf("Retain-Loss bei identischem Student = %v, erwartet exakt 0", res.loss)
	}
	zero := mat.NewDense(testVocab, testDim, nil)
	if !mat.Equal(res.grad, zero) {
		t.Error("Retain-Gradient bei identischem Student nicht 0")
	}
}

func TestForgetPass(t *testing.T) {
	f := newFixture(t, model.TieShared)
	tr, err := New(f.model, f.readout, f.config(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := tr.Init(ctx); err != nil {
		t.Fatal(err)
	}

	batch, _ := f.source.ForgetBatch(ctx, 0)
	res, err := tr.forgetPass(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}

	if !ml.Finite(res.loss) || res.loss <= 0 {
		t.Errorf("Forget-Loss = %v, erwartet endlich und > 0", res.loss)
	}
	if res.forgetProb < 0 || res.forgetProb > 1 {
		t.Errorf("ForgetProb = %v ausserhalb [0,1]", res.forgetProb)
	}
	if r, c := res.grad.Dims(); r != testVocab || c != testDim {
		t.Errorf("Gradient-Shape = %dx%d, erwartet %dx%d", r, c, testVocab, testDim)
	}

	// Das Konzept dominiert die Batch-Sequenzen: der Gradient auf den
	// Konzept-Zeilen ist nicht null.
	var conceptNorm float64
	for id := 0; id < testConcept; id++ {
		for _, v := range res.grad.RawRowView(id) {
			conceptNorm += v * v
		}
	}
	if conceptNorm == 0 {
		t.Error("kein Gradient auf den Konzept-Zeilen")
	}
}

func TestGate(t *testing.T) {
	tr := &Trainer{cfg: Config{
		Weights:   map[int]float64{0: 1, 1: 0.8, 2: 0.3},
		GateFloor: 0.5,
	}}

	grad := mat.NewDense(4, 2, []float64{
		1, 2,
		1, 2,
		1, 2,
		1, 2,
	})
	tr.gate(grad)

	// Gewicht 1: unveraendert.
	if grad.At(0, 0) != 1 || grad.At(0, 1) != 2 {
		t.Error("Zeile mit Gewicht 1 veraendert")
	}
	// Gewicht 0.8 ueber dem Floor: skaliert.
	if grad.At(1, 0) != 0.8 || grad.At(1, 1) != 1.6 {
		t.Errorf("Zeile mit Gewicht 0.8 = (%v, %v), erwartet (0.8, 1.6)", grad.At(1, 0), grad.At(1, 1))
	}
	// Gewicht 0.3 unter dem Floor: exakt genullt.
	if grad.At(2, 0) != 0 || grad.At(2, 1) != 0 {
		t.Error("Zeile unter dem Floor nicht genullt")
	}
	// Token ohne Eintrag: Gewicht 0, genullt.
	if grad.At(3, 0) != 0 || grad.At(3, 1) != 0 {
		t.Error("Zeile ohne Gewichts-Eintrag nicht genullt")
	}
}

func TestGateNilWeightsPassesThrough(t *testing.T) {
	tr := &Trainer{cfg: Config{GateFloor: 0.9}}
	grad := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	want := mat.DenseCopyOf(grad)
	tr.gate(grad)
	if !mat.Equal(grad, want) {
		t.Error("nil-Gewichtstabelle veraendert den Gradienten")
	}
}

func TestScatterRows(t *testing.T) {
	table := mat.NewDense(3, 2, nil)
	gradInput := mat.NewDense(3, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
	})
	// Token 0 kommt doppelt vor: Beitraege addieren sich.
	scatterRows(table, []int{0, 2, 0}, gradInput)

	if table.At(0, 0) != 4 || table.At(0, 1) != 4 {
		t.Errorf("Zeile 0 = (%v, %v), erwartet (4, 4)", table.At(0, 0), table.At(0, 1))
	}
	if table.At(1, 0) != 0 {
		t.Error("unbeteiligte Zeile veraendert")
	}
	if table.At(2, 0) != 2 {
		t.Errorf("Zeile 2 = %v, erwartet 2", table.At(2, 0))
	}
}
