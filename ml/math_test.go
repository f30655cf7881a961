// math_test.go - Tests fuer die numerischen Grundoperationen
package ml

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestLogSumExp(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{
			name: "einzelnes Element",
			x:    []float64{3.5},
			want: 3.5,
		},
		{
			name: "symmetrisch",
			x:    []float64{0, 0},
			want: math.Log(2),
		},
		{
			name: "grosse Werte ohne Overflow",
			x:    []float64{1000, 1000},
			want: 1000 + math.Log(2),
		},
		{
			name: "leer",
			x:    nil,
			want: math.Inf(-1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogSumExp(tt.x)
			if math.Abs(got-tt.want) > 1e-12 && got != tt.want {
				t.Errorf("LogSumExp(%v) = %v, erwartet %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	logits := []float64{-2, 0.5, 3, 700}
	p := Softmax(nil, logits)

	if s := floats.Sum(p); math.Abs(s-1) > 1e-12 {
		t.Errorf("Softmax-Summe = %v, erwartet 1", s)
	}
	for i, v := range p {
		if v < 0 || v > 1 {
			t.Errorf("Softmax[%d] = %v ausserhalb [0,1]", i, v)
		}
	}
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	logits := []float64{1, -3, 0.25, 2}
	p := Softmax(nil, logits)
	lp := LogSoftmax(nil, logits)

	for i := range p {
		if math.Abs(math.Exp(lp[i])-p[i]) > 1e-12 {
			t.Errorf("exp(LogSoftmax[%d]) = %v, Softmax = %v", i, math.Exp(lp[i]), p[i])
		}
	}
}

func TestKLDiv(t *testing.T) {
	p := Softmax(nil, []float64{1, 2, 3})
	q := Softmax(nil, []float64{3, 1, 0})

	// Identische Verteilungen: exakt 0.
	if d := KLDiv(p, p); d != 0 {
		t.Errorf("KLDiv(p, p) = %v, erwartet 0", d)
	}

	// Verschiedene Verteilungen: strikt positiv (Gibbs-Ungleichung).
	if d := KLDiv(p, q); d <= 0 {
		t.Errorf("KLDiv(p, q) = %v, erwartet > 0", d)
	}

	// Nullen in q duerfen nicht zu Inf fuehren (Floor).
	if d := KLDiv(p, []float64{1, 0, 0}); math.IsInf(d, 0) || math.IsNaN(d) {
		t.Errorf("KLDiv mit Nullen in q = %v, erwartet endlich", d)
	}
}

func TestMeanPool(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	got := MeanPool(m)
	want := []float64{3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MeanPool[%d] = %v, erwartet %v", i, got[i], want[i])
		}
	}
}

func TestFinite(t *testing.T) {
	if !Finite(0, -1.5, 1e300) {
		t.Error("Finite auf endlichen Werten = false")
	}
	if Finite(1, math.NaN()) {
		t.Error("Finite mit NaN = true")
	}
	if Finite(math.Inf(1)) {
		t.Error("Finite mit +Inf = true")
	}
}
