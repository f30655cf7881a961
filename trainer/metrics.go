// metrics.go - Metrik-Strom eines Unlearning-Runs
//
// Enthaelt: Metrics (pro Schritt), Sink (Callback) und Report
// (Endergebnis eines Runs).
package trainer

// Metrics is one entry of the per-step metrics stream.
type Metrics struct {
	Step        int
	LossUnlearn float64
	LossRetain  float64 // raw retain loss, before the lambda weighting
	Combined    float64 // LossUnlearn + lambda * LossRetain
	ForgetProb  float64 // mean forgotten-class probability on the forget batch
}

// Sink receives every completed step's metrics. A nil sink is allowed.
type Sink func(Metrics)

// Report fasst einen abgeschlossenen Run zusammen.
type Report struct {
	Steps          int
	EarlyStopped   bool
	Final          Metrics
	HeldOutForget  float64 // mean forgotten probability on the held-out set, -1 if not evaluated
	CheckpointPath string
}
