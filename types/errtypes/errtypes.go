// Package errtypes contains structured error kinds surfaced to the
// external driver of an unlearning run.
//
// Enthaelt: ConfigError, InstabilityError, RetentionRegressionError,
// ConsistencyError sowie den MetricSnapshot, der fatalen Fehlern beiliegt.
package errtypes

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel all configuration errors wrap.
// Fatal at start of a run.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigError beschreibt eine ungueltige Konfiguration (z.B. K < 2,
// Forgotten-Class ausserhalb des Klassenbereichs, unvollstaendige
// Vokabular-Partition).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// MetricSnapshot is the last metric state observed before a fatal error.
type MetricSnapshot struct {
	Step        int
	LossUnlearn float64
	LossRetain  float64
	ForgetProb  float64
}

// InstabilityError meldet einen nicht-finiten Loss, nachdem das
// Retry-Budget fuer den Batch aufgebraucht wurde. Einzelne nicht-finite
// Batches werden lokal absorbiert; erst der erschoepfte Retry-Zaehler
// fuehrt zu diesem Fehler.
type InstabilityError struct {
	Step    int
	Retries int
	Last    MetricSnapshot
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("non-finite loss at step %d after %d retries", e.Step, e.Retries)
}

// RetentionRegressionError meldet anhaltende Divergenz: der Retain-Loss
// lag fuer Consecutive aufeinanderfolgende Schritte ueber dem Ceiling.
// Der Run wird abgebrochen und auf den letzten guten Checkpoint
// zurueckgerollt.
type RetentionRegressionError struct {
	Step        int
	Retain      float64
	Ceiling     float64
	Consecutive int
	Last        MetricSnapshot
}

func (e *RetentionRegressionError) Error() string {
	return fmt.Sprintf("retain loss %.6f above ceiling %.6f for %d consecutive steps (step %d)",
		e.Retain, e.Ceiling, e.Consecutive, e.Step)
}

// ConsistencyError wird zurueckgegeben, wenn Generation angefragt wird,
// waehrend Embedding-Tabelle und Output-Projektion nicht abgeglichen
// sind. Fails closed: Generation bleibt verweigert, bis ein Resync
// gelaufen ist.
type ConsistencyError struct {
	Mutations uint64 // embedding mutations since the last resync
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("output projection stale: %d embedding mutations since last resync", e.Mutations)
}
