// trainer.go - Orchestrierung des Unlearning-Trainings
//
// Zustandsmaschine: Init -> (ForgetStep | RetainStep)* -> Finalize.
// Der Trainer besitzt die Embedding-Tabelle waehrend des Runs exklusiv;
// alle anderen Parameter (Transformer, Readout) sind eingefroren und
// Gradienten fuer sie werden nie materialisiert.
//
// Scheduling (fix, dokumentiert): Run konsumiert pro Schritt genau ein
// Forget/Retain-Batch-Paar in strikter Alternation Forget -> Retain.
// Die Batch-Pipeline laedt nebenlaeufig voraus, konsumiert wird
// sequenziell und deterministisch.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lethe-ml/lethe/logutil"
	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/model"
	"github.com/lethe-ml/lethe/readout"
	"github.com/lethe-ml/lethe/types/errtypes"
)

// State der Trainer-Zustandsmaschine.
type State int

const (
	StateNew State = iota
	StateReady
	StateFinalized
)

// checkpointName ist der Dateiname des Tabellen-Checkpoints im
// Checkpoint-Verzeichnis. Er wird atomar ueberschrieben; der letzte
// erfolgreich geschriebene Stand ist der einzige gueltige
// Wiederaufsetzpunkt.
const checkpointName = "embedding.ltck"

// errNonFinite markiert einen Batch mit nicht-finitem Loss. Er wird in
// Run lokal absorbiert (Batch verwerfen, Ersatz holen) und erst nach
// erschoepftem Retry-Budget als InstabilityError nach aussen gereicht.
var errNonFinite = errors.New("non-finite loss")

type Trainer struct {
	cfg      Config
	model    *model.Model
	readout  readout.Readout
	snapshot *model.Snapshot

	state      State
	pair       int // completed forget/retain pairs
	highRetain int // consecutive pairs with retain loss above the ceiling
	last       errtypes.MetricSnapshot
}

// New validiert die Konfiguration und erstellt einen Trainer im Zustand
// StateNew. Der Readout traegt K und die Forgotten-Class und ist beim
// Erstellen bereits validiert.
func New(m *model.Model, r readout.Readout, cfg Config) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &errtypes.ConfigError{Field: "model", Reason: "required"}
	}
	if r == nil {
		return nil, &errtypes.ConfigError{Field: "readout", Reason: "required"}
	}
	return &Trainer{cfg: cfg, model: m, readout: r}, nil
}

// Init nimmt den Teacher-Snapshot, schreibt den initialen Checkpoint und
// macht den Trainer schrittbereit. Ab hier ist die Embedding-Tabelle die
// einzige traininerbare Ressource des Runs.
func (t *Trainer) Init(ctx context.Context) error {
	if t.state != StateNew {
		return fmt.Errorf("init on trainer in state %d", t.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.snapshot = t.model.Snapshot()
	if err := t.model.SaveCheckpoint(t.checkpointPath()); err != nil {
		return fmt.Errorf("initial checkpoint: %w", err)
	}

	t.state = StateReady
	slog.Info("unlearning run initialized",
		"vocab", t.model.Vocab(), "dim", t.model.Dim(),
		"classes", t.readout.Classes(), "forgotten", t.readout.Forgotten(),
		"readout", t.readout.Kind().String(), "optimizer", t.cfg.Optimizer.Name(),
		"lambda", t.cfg.Lambda)
	return nil
}

func (t *Trainer) checkpointPath() string {
	return filepath.Join(t.cfg.CheckpointDir, checkpointName)
}

// ForgetStep fuehrt einen Unlearning-Schritt auf einem Forget-Batch aus:
// Masked-Class-Loss, Gradient-Gating, Update der Embedding-Zeilen.
func (t *Trainer) ForgetStep(ctx context.Context, batch [][]int) (Metrics, error) {
	if t.state != StateReady {
		return Metrics{}, fmt.Errorf("forget step on trainer in state %d", t.state)
	}
	if len(batch) == 0 {
		return Metrics{}, fmt.Errorf("empty forget batch")
	}

	res, err := t.forgetPass(ctx, batch)
	if err != nil {
		return Metrics{}, err
	}
	if !ml.Finite(res.loss, res.forgetProb) {
		return Metrics{}, errNonFinite
	}

	t.gate(res.grad)
	if err := t.cfg.Optimizer.Step(t.model, res.grad); err != nil {
		return Metrics{}, err
	}
	return Metrics{Step: t.pair, LossUnlearn: res.loss, ForgetProb: res.forgetProb}, nil
}

// RetainStep fuehrt einen Retention-Schritt auf einem Retain-Batch aus:
// KL gegen den Teacher-Snapshot, mit Lambda gewichtet. Bei Lambda 0
// wird gemessen, aber nicht aktualisiert.
func (t *Trainer) RetainStep(ctx context.Context, batch [][]int) (Metrics, error) {
	if t.state != StateReady {
		return Metrics{}, fmt.Errorf("retain step on trainer in state %d", t.state)
	}
	if len(batch) == 0 {
		return Metrics{}, fmt.Errorf("empty retain batch")
	}

	res, err := t.retainPass(ctx, batch)
	if err != nil {
		return Metrics{}, err
	}
	if !ml.Finite(res.loss) {
		return Metrics{}, errNonFinite
	}

	if t.cfg.Lambda > 0 {
		res.grad.Scale(t.cfg.Lambda, res.grad)
		t.gate(res.grad)
		if err := t.cfg.Optimizer.Step(t.model, res.grad); err != nil {
			return Metrics{}, err
		}
	}
	return Metrics{Step: t.pair, LossRetain: res.loss}, nil
}

// EvalForget berechnet die mittlere Forgotten-Class-Wahrscheinlichkeit
// auf dem Held-out-Forget-Set (Forget-Success-Metrik).
func (t *Trainer) EvalForget(ctx context.Context) (float64, error) {
	if len(t.cfg.HeldOut) == 0 {
		return -1, nil
	}
	probs := make([]float64, t.readout.Classes())
	var sum float64
	for _, tokens := range t.cfg.HeldOut {
		hidden, _, err := t.model.Forward(ctx, tokens)
		if err != nil {
			return 0, err
		}
		ml.Softmax(probs, t.readout.Logits(hidden))
		sum += probs[t.readout.Forgotten()]
	}
	return sum / float64(len(t.cfg.HeldOut)), nil
}

// Run fuehrt den kompletten Trainings-Loop aus: Prefetching, strikte
// Forget/Retain-Alternation, Retry bei nicht-finitem Loss, Abbruch mit
// Rollback bei anhaltender Divergenz, periodische Checkpoints und
// Early-Stopping ueber die Forget-Success-Metrik.
func (t *Trainer) Run(ctx context.Context, src Source) (*Report, error) {
	if t.state != StateReady {
		return nil, fmt.Errorf("run on trainer in state %d", t.state)
	}

	pf := NewPrefetcher(ctx, src, t.cfg.MaxSteps, t.cfg.PrefetchDepth)
	defer pf.Close()

	retrySeq := 0
	earlyStopped := false

loop:
	for {
		batches, ok, err := pf.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		retries := 0
		for {
			m, err := t.stepPair(ctx, batches.forget, batches.retain)
			if err == nil {
				t.record(m)
				break
			}
			if !errors.Is(err, errNonFinite) {
				return nil, err
			}

			// Numerische Instabilitaet: Batch verwerfen, deterministisch
			// nachgezogenen Ersatz-Batch versuchen.
			retries++
			slog.Warn("non-finite loss, skipping batch", "step", t.pair, "retry", retries)
			if retries > t.cfg.MaxRetries {
				t.rollback()
				return nil, &errtypes.InstabilityError{Step: t.pair, Retries: retries - 1, Last: t.last}
			}
			replacement := t.cfg.MaxSteps + retrySeq
			retrySeq++
			if batches.forget, err = src.ForgetBatch(ctx, replacement); err != nil {
				return nil, err
			}
			if batches.retain, err = src.RetainBatch(ctx, replacement); err != nil {
				return nil, err
			}
		}

		// Anhaltende Retention-Regression ist fatal.
		if t.last.LossRetain > t.cfg.RetainCeiling {
			t.highRetain++
			if t.highRetain >= t.cfg.RegressionWindow {
				t.rollback()
				return nil, &errtypes.RetentionRegressionError{
					Step:        t.pair,
					Retain:      t.last.LossRetain,
					Ceiling:     t.cfg.RetainCeiling,
					Consecutive: t.highRetain,
					Last:        t.last,
				}
			}
		} else {
			t.highRetain = 0
		}

		if t.pair%t.cfg.CheckpointEvery == 0 {
			if err := t.model.SaveCheckpoint(t.checkpointPath()); err != nil {
				return nil, err
			}
		}

		if t.cfg.Epsilon > 0 && t.pair%t.cfg.EvalEvery == 0 {
			heldOut, err := t.EvalForget(ctx)
			if err != nil {
				return nil, err
			}
			if heldOut >= 0 && heldOut < t.cfg.Epsilon && t.last.LossRetain < t.cfg.Delta {
				slog.Info("early stop", "step", t.pair, "heldout_forget", heldOut, "retain", t.last.LossRetain)
				earlyStopped = true
				break loop
			}
		}
	}

	report, err := t.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	report.EarlyStopped = earlyStopped
	return report, nil
}

// stepPair fuehrt genau ein Forget/Retain-Paar aus und liefert die
// kombinierten Metriken.
func (t *Trainer) stepPair(ctx context.Context, forget, retain [][]int) (Metrics, error) {
	fm, err := t.ForgetStep(ctx, forget)
	if err != nil {
		return Metrics{}, err
	}
	rm, err := t.RetainStep(ctx, retain)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Step:        t.pair,
		LossUnlearn: fm.LossUnlearn,
		LossRetain:  rm.LossRetain,
		Combined:    fm.LossUnlearn + t.cfg.Lambda*rm.LossRetain,
		ForgetProb:  fm.ForgetProb,
	}, nil
}

func (t *Trainer) record(m Metrics) {
	t.pair++
	t.last = errtypes.MetricSnapshot{
		Step:        m.Step,
		LossUnlearn: m.LossUnlearn,
		LossRetain:  m.LossRetain,
		ForgetProb:  m.ForgetProb,
	}
	logutil.Trace("step complete",
		"step", m.Step, "loss_unlearn", m.LossUnlearn, "loss_retain", m.LossRetain,
		"forget_prob", m.ForgetProb)
	if t.cfg.Sink != nil {
		t.cfg.Sink(m)
	}
}

// rollback stellt den letzten guten Checkpoint wieder her.
func (t *Trainer) rollback() {
	if err := t.model.RestoreCheckpoint(t.checkpointPath()); err != nil {
		slog.Error("rollback failed", "error", err)
		return
	}
	slog.Info("rolled back to last good checkpoint", "step", t.pair)
}

// Finalize schreibt den finalen Checkpoint, loest den Consistency Guard
// auf (Resync der Output-Projektion) und beendet den Run.
func (t *Trainer) Finalize(ctx context.Context) (*Report, error) {
	if t.state != StateReady {
		return nil, fmt.Errorf("finalize on trainer in state %d", t.state)
	}

	if err := t.model.SaveCheckpoint(t.checkpointPath()); err != nil {
		return nil, err
	}
	t.model.Resync()
	t.state = StateFinalized

	heldOut, err := t.EvalForget(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("unlearning run finalized",
		"steps", t.pair, "heldout_forget", heldOut,
		"generation_ready", t.model.GenerationReady())

	return &Report{
		Steps: t.pair,
		Final: Metrics{
			Step:        t.last.Step,
			LossUnlearn: t.last.LossUnlearn,
			LossRetain:  t.last.LossRetain,
			Combined:    t.last.LossUnlearn + t.cfg.Lambda*t.last.LossRetain,
			ForgetProb:  t.last.ForgetProb,
		},
		HeldOutForget:  heldOut,
		CheckpointPath: t.checkpointPath(),
	}, nil
}
