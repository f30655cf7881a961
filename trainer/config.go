// config.go - Konfiguration eines Unlearning-Runs
//
// Enthaelt: Config, DefaultConfig und die Validierung beim Erstellen
// des Trainers. Ungueltige Konfigurationen sind fatal am Start
// (ConfigError), nie erst mitten im Run.
package trainer

import (
	"fmt"
	"math"

	"github.com/lethe-ml/lethe/envconfig"
	"github.com/lethe-ml/lethe/types/errtypes"
)

type Config struct {
	// Lambda weighs the retention term in the combined loss.
	Lambda float64

	// Optimizer updates the embedding rows. Defaults to SGD.
	Optimizer Optimizer

	// Weights is the immutable importance lookup table (token -> [0,1])
	// computed by the importance analyzer. Nil disables gating: every
	// row receives the full update.
	//
	// Policy (fixed for the run, per design): gradient gating. A row's
	// gradient is scaled by its weight; rows below GateFloor are zeroed
	// and receive exactly no update. Tokens absent from the table count
	// as weight 0.
	Weights map[int]float64

	// GateFloor zeroes rows whose weight lies below it.
	GateFloor float64

	// MaxSteps is the fixed budget of forget/retain step pairs.
	MaxSteps int

	// MaxRetries bounds how often a non-finite batch is replaced before
	// the run aborts with an InstabilityError.
	MaxRetries int

	// RetainCeiling and RegressionWindow abort the run when the retain
	// loss stays above the ceiling for RegressionWindow consecutive
	// pairs (RetentionRegressionError, rollback to last good checkpoint).
	RetainCeiling    float64
	RegressionWindow int

	// Epsilon/Delta control early stopping: stop once the held-out
	// forgotten probability falls below Epsilon while the retain loss is
	// below Delta. Epsilon 0 disables early stopping.
	Epsilon float64
	Delta   float64

	// HeldOut is the held-out forget set for the forget-success metric.
	HeldOut [][]int

	// EvalEvery is the pair interval for held-out evaluation.
	EvalEvery int

	// CheckpointDir and CheckpointEvery control periodic persistence.
	CheckpointDir   string
	CheckpointEvery int

	// PrefetchDepth is the batch pipeline depth used by Run.
	PrefetchDepth int

	// Sink receives the per-step metrics stream. Optional.
	Sink Sink
}

// DefaultConfig liefert eine lauffaehige Konfiguration; Lambda und
// Checkpoint-Verzeichnis kommen aus envconfig.
func DefaultConfig() Config {
	return Config{
		Lambda:           envconfig.RetainLambda(),
		Optimizer:        &SGD{LR: 0.1},
		MaxSteps:         100,
		MaxRetries:       3,
		RetainCeiling:    math.Inf(1),
		RegressionWindow: 5,
		EvalEvery:        10,
		CheckpointDir:    envconfig.Checkpoints(),
		CheckpointEvery:  25,
		PrefetchDepth:    2,
	}
}

func (c *Config) validate() error {
	if c.Lambda < 0 {
		return &errtypes.ConfigError{Field: "Lambda", Reason: "must be >= 0"}
	}
	if c.Optimizer == nil {
		return &errtypes.ConfigError{Field: "Optimizer", Reason: "required"}
	}
	if c.MaxSteps <= 0 {
		return &errtypes.ConfigError{Field: "MaxSteps", Reason: "must be > 0"}
	}
	if c.MaxRetries < 0 {
		return &errtypes.ConfigError{Field: "MaxRetries", Reason: "must be >= 0"}
	}
	if c.GateFloor < 0 || c.GateFloor > 1 {
		return &errtypes.ConfigError{Field: "GateFloor", Reason: "must be in [0,1]"}
	}
	if c.RegressionWindow <= 0 {
		return &errtypes.ConfigError{Field: "RegressionWindow", Reason: "must be > 0"}
	}
	if c.CheckpointDir == "" {
		return &errtypes.ConfigError{Field: "CheckpointDir", Reason: "required"}
	}
	for id, w := range c.Weights {
		if w < 0 || w > 1 {
			return &errtypes.ConfigError{Field: "Weights", Reason: fmt.Sprintf("weight %g for token %d outside [0,1]", w, id)}
		}
	}
	if c.EvalEvery <= 0 {
		c.EvalEvery = 10
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 25
	}
	return nil
}
