// loss.go - Unlearning- und Retention-Loss mit Rueckwaertspfad
//
// Dieses Modul enthaelt:
// - forgetPass: Masked-Class-Loss gegen die TargetDistribution
// - retainPass: KL(teacher || student) ueber Next-Token-Verteilungen
// - Gradient-Akkumulation in eine vocab x dim Tabelle
//
// Beide Paesse materialisieren Gradienten ausschliesslich fuer die
// Embedding-Tabelle: der Input-Pfad laeuft ueber den Transformer-VJP,
// der Projektions-Pfad ueber den Readout- bzw. Logit-Rueckwaertsschritt.
// Gradienten fuer andere Parameter entstehen nie.
package trainer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
)

// passResult buendelt Loss und Tabellen-Gradient eines Batches.
type passResult struct {
	loss       float64
	forgetProb float64    // only set by forgetPass
	grad       *mat.Dense // vocab x dim, mean over the batch
}

// forgetPass berechnet den Masked-Class-Loss
//
//	L = -(1/(K-1)) * sum_{c != f} log softmax(z)[c]
//
// (Kreuzentropie gegen die TargetDistribution: 0 auf der Forgotten-Class,
// uniform 1/(K-1) sonst). Der Klassen-Gradient ist p - target.
func (t *Trainer) forgetPass(ctx context.Context, batch [][]int) (*passResult, error) {
	k := t.readout.Classes()
	f := t.readout.Forgotten()
	res := &passResult{grad: mat.NewDense(t.model.Vocab(), t.model.Dim(), nil)}

	logp := make([]float64, k)
	gradClass := make([]float64, k)
	for _, tokens := range batch {
		hidden, vjp, err := t.model.Forward(ctx, tokens)
		if err != nil {
			return nil, err
		}
		logits := t.readout.Logits(hidden)
		ml.LogSoftmax(logp, logits)

		var loss float64
		for c := 0; c < k; c++ {
			if c != f {
				loss -= logp[c]
			}
		}
		loss /= float64(k - 1)
		res.loss += loss
		res.forgetProb += math.Exp(logp[f])

		// dL/dz = p - target
		for c := 0; c < k; c++ {
			gradClass[c] = math.Exp(logp[c])
			if c != f {
				gradClass[c] -= 1 / float64(k-1)
			}
		}

		grad, err := t.readout.Backward(hidden, gradClass)
		if err != nil {
			return nil, err
		}
		if grad.Embedding != nil {
			res.grad.Add(res.grad, grad.Embedding)
		}
		scatterRows(res.grad, tokens, vjp(grad.Hidden))
	}

	inv := 1 / float64(len(batch))
	res.loss *= inv
	res.forgetProb *= inv
	res.grad.Scale(inv, res.grad)
	return res, nil
}

// retainPass berechnet KL(teacher || student) ueber die
// Next-Token-Verteilungen eines Retain-Batches, gemittelt ueber
// Positionen und Beispiele.
func (t *Trainer) retainPass(ctx context.Context, batch [][]int) (*passResult, error) {
	vocab, dim := t.model.Vocab(), t.model.Dim()
	res := &passResult{grad: mat.NewDense(vocab, dim, nil)}

	for _, tokens := range batch {
		hidden, vjp, err := t.model.Forward(ctx, tokens)
		if err != nil {
			return nil, err
		}
		teacherHidden, err := t.snapshot.Forward(ctx, tokens)
		if err != nil {
			return nil, err
		}

		T := len(tokens)
		invT := 1 / float64(T)
		gradLogits := mat.NewDense(T, vocab, nil)
		for pos := 0; pos < T; pos++ {
			student := ml.Softmax(nil, t.model.TableLogits(hidden.RawRowView(pos)))
			teacher := ml.Softmax(nil, t.snapshot.TableLogits(teacherHidden.RawRowView(pos)))
			res.loss += ml.KLDiv(teacher, student) * invT

			// d KL(q||p) / d studentLogits = p - q
			grow := gradLogits.RawRowView(pos)
			for v := range grow {
				grow[v] = (student[v] - teacher[v]) * invT
			}
		}

		// Projektions-Pfad: dL/dE = gradLogits^T . hidden
		var gradE mat.Dense
		gradE.Mul(gradLogits.T(), hidden)
		res.grad.Add(res.grad, &gradE)

		// Hidden-Pfad: dL/dh = gradLogits . E, dann durch den VJP.
		var gradH mat.Dense
		gradH.Mul(gradLogits, t.model.Table())
		scatterRows(res.grad, tokens, vjp(&gradH))
	}

	inv := 1 / float64(len(batch))
	res.loss *= inv
	res.grad.Scale(inv, res.grad)
	return res, nil
}

// scatterRows addiert Input-Embedding-Gradienten positionsweise auf die
// Tabellenzeilen der jeweiligen Tokens.
func scatterRows(table *mat.Dense, tokens []int, gradInput *mat.Dense) {
	for pos, id := range tokens {
		row := table.RawRowView(id)
		grow := gradInput.RawRowView(pos)
		for j, v := range grow {
			row[j] += v
		}
	}
}

// gate wendet die Importance-Gewichte als Gradient-Gating an: Zeilen
// unterhalb des Floors werden exakt genullt, alle anderen mit ihrem
// Gewicht skaliert. Eine nil-Gewichtstabelle laesst alles durch.
func (t *Trainer) gate(grad *mat.Dense) {
	if t.cfg.Weights == nil {
		return
	}
	vocab, _ := grad.Dims()
	for id := 0; id < vocab; id++ {
		w := t.cfg.Weights[id]
		if w < t.cfg.GateFloor {
			w = 0
		}
		if w == 1 {
			continue
		}
		row := grad.RawRowView(id)
		for j := range row {
			row[j] *= w
		}
	}
}
