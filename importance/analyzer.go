// analyzer.go - Integrated Gradients ueber Token-Embeddings
//
// Dieses Modul enthaelt:
// - Analyzer: Konfiguration der Attribution (Scoring, Baseline, Schritte)
// - Attribute: Attribution eines einzelnen Beispiels
// - Analyze: Parallele Attribution vieler Beispiele plus Aggregation
//
// Algorithmus: fuer jedes Beispiel werden die Embeddings linear zwischen
// Baseline und Ist-Wert interpoliert (Mittelpunktsregel ueber M
// Schritte); die Attribution einer Position ist das elementweise Produkt
// aus (actual - baseline) und dem mittleren Gradienten des
// Forgotten-Class-Logits. Das Vollstaendigkeits-Axiom wird pro Beispiel
// geprueft; Verletzungen sind Warnungen, keine Fehler - typisch ist
// schlicht ein zu kleines M.
package importance

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/envconfig"
	"github.com/lethe-ml/lethe/model"
	"github.com/lethe-ml/lethe/readout"
)

type Analyzer struct {
	Model   *model.Model // read-only access
	Readout readout.Readout

	// Steps is the interpolation step count M. 0 means envconfig default.
	Steps int

	// Baseline embedding; nil means the zero vector. A designated padding
	// embedding is the usual alternative.
	Baseline []float64

	// Tolerance for the completeness axiom. 0 means envconfig default.
	Tolerance float64

	// Workers bounds concurrent per-example attribution. 0 means
	// envconfig default.
	Workers int
}

// Attribution ist das Ergebnis fuer ein einzelnes Beispiel.
type Attribution struct {
	Tokens []int
	Scores []float64 // per position

	// Delta = score(actual) - score(baseline); die Summe der Scores muss
	// Delta bis auf die Toleranz treffen (Vollstaendigkeits-Axiom).
	Delta    float64
	Residual float64 // |sum(Scores) - Delta|
	Violated bool
}

func (a *Analyzer) steps() int {
	if a.Steps > 0 {
		return a.Steps
	}
	return int(envconfig.IGSteps())
}

func (a *Analyzer) tolerance() float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return envconfig.IGTolerance()
}

func (a *Analyzer) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return int(envconfig.Workers())
}

// score ist das Forgotten-Class-Logit des Readouts ueber den
// Hidden-States der gegebenen Embeddings.
func (a *Analyzer) score(ctx context.Context, embeds *mat.Dense) (float64, error) {
	hidden, _, err := a.Model.Transformer().Forward(ctx, embeds)
	if err != nil {
		return 0, err
	}
	return a.Readout.Logits(hidden)[a.Readout.Forgotten()], nil
}

// scoreGrad liefert den Gradienten des Scores nach den Input-Embeddings.
// Nur der Input-Pfad zaehlt: Attributiert werden die interpolierten
// Embeddings, nicht die Projektionszeilen der Tabelle.
func (a *Analyzer) scoreGrad(ctx context.Context, embeds *mat.Dense) (*mat.Dense, error) {
	hidden, vjp, err := a.Model.Transformer().Forward(ctx, embeds)
	if err != nil {
		return nil, err
	}
	seed := make([]float64, a.Readout.Classes())
	seed[a.Readout.Forgotten()] = 1
	grad, err := a.Readout.Backward(hidden, seed)
	if err != nil {
		return nil, err
	}
	return vjp(grad.Hidden), nil
}

// Attribute berechnet die Integrated-Gradients-Attribution eines
// Beispiels.
func (a *Analyzer) Attribute(ctx context.Context, tokens []int) (*Attribution, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty example")
	}

	actual, err := a.Model.EmbedSequence(tokens)
	if err != nil {
		return nil, err
	}
	T, dim := actual.Dims()

	baseline := mat.NewDense(T, dim, nil)
	if a.Baseline != nil {
		if len(a.Baseline) != dim {
			return nil, fmt.Errorf("baseline dimension %d, want %d", len(a.Baseline), dim)
		}
		for t := 0; t < T; t++ {
			baseline.SetRow(t, a.Baseline)
		}
	}

	var diff mat.Dense
	diff.Sub(actual, baseline)

	// Mittelpunktsregel: alpha = (i+0.5)/M.
	m := a.steps()
	avg := mat.NewDense(T, dim, nil)
	point := mat.NewDense(T, dim, nil)
	for i := 0; i < m; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alpha := (float64(i) + 0.5) / float64(m)
		point.Copy(baseline)
		var scaled mat.Dense
		scaled.Scale(alpha, &diff)
		point.Add(point, &scaled)

		grad, err := a.scoreGrad(ctx, point)
		if err != nil {
			return nil, err
		}
		avg.Add(avg, grad)
	}
	avg.Scale(1/float64(m), avg)

	attr := &Attribution{Tokens: tokens, Scores: make([]float64, T)}
	for t := 0; t < T; t++ {
		attr.Scores[t] = floats.Dot(diff.RawRowView(t), avg.RawRowView(t))
	}

	actualScore, err := a.score(ctx, actual)
	if err != nil {
		return nil, err
	}
	baseScore, err := a.score(ctx, baseline)
	if err != nil {
		return nil, err
	}
	attr.Delta = actualScore - baseScore

	sum := floats.Sum(attr.Scores)
	attr.Residual = abs(sum - attr.Delta)
	if attr.Residual > a.tolerance() {
		attr.Violated = true
		slog.Warn("integrated gradients completeness tolerance exceeded",
			"residual", attr.Residual, "tolerance", a.tolerance(), "steps", m,
			"hint", "increase the interpolation step count")
	}
	return attr, nil
}

// Analyze attributiert alle Beispiele (parallel, begrenzt durch Workers)
// und aggregiert die Scores deterministisch in Beispiel-Reihenfolge.
func (a *Analyzer) Analyze(ctx context.Context, examples [][]int) (*Result, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples")
	}

	attrs := make([]*Attribution, len(examples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, ex := range examples {
		i, ex := i, ex
		g.Go(func() error {
			attr, err := a.Attribute(ctx, ex)
			if err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}
			attrs[i] = attr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Attributions: attrs,
		sum:          make(map[int]float64),
		count:        make(map[int]int),
	}
	for _, attr := range attrs {
		if attr.Violated {
			res.Violations++
		}
		for t, id := range attr.Tokens {
			res.sum[id] += attr.Scores[t]
			res.count[id]++
		}
	}

	slog.Info("importance analysis complete",
		"examples", len(examples), "tokens", len(res.sum), "violations", res.Violations)
	return res, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
