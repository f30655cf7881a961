// guard.go - Consistency Guard zwischen Embedding-Tabelle und Projektion
//
// Der Guard garantiert, dass die fuer Generation verwendete
// Output-Projektion eine korrekte Funktion der aktuellen
// Embedding-Tabelle ist:
// - TieShared: Projektion ist eine Sicht auf die Tabelle, Konsistenz gilt
//   strukturell.
// - TieResync: Projektion wird separat gehalten; nach Mutationen muss
//   Resync laufen, sonst wird Generation verweigert (fails closed).
package model

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/types/errtypes"
)

// GenerationReady meldet, ob Generation bedient werden darf.
func (m *Model) GenerationReady() bool {
	if m.tie == TieShared {
		return true
	}
	return m.synced.Load() && m.resynced.Load() == m.mutations.Load()
}

// RequireGenerationReady gibt einen ConsistencyError zurueck, wenn die
// Projektion nicht mit der Tabelle abgeglichen ist.
func (m *Model) RequireGenerationReady() error {
	if m.GenerationReady() {
		return nil
	}
	return &errtypes.ConsistencyError{Mutations: m.mutations.Load() - m.resynced.Load()}
}

// Resync kopiert die Embedding-Tabelle in die Output-Projektion.
// Idempotent: zwei aufeinanderfolgende Resyncs ohne zwischenzeitliche
// Mutation produzieren bit-identische Projektionen. Im TieShared-Modus
// ist Resync ein No-op.
func (m *Model) Resync() {
	if m.tie == TieShared {
		return
	}
	seen := m.mutations.Load()
	m.proj.Copy(m.emb)
	m.resynced.Store(seen)
	m.synced.Store(true)
	slog.Debug("output projection resynced", "mutations", seen)
}

// Projection gibt die Generations-Projektion als Nur-Lese-Matrix zurueck.
// Im TieShared-Modus ist das die Tabelle selbst.
func (m *Model) Projection() mat.Matrix {
	if m.tie == TieShared {
		return m.emb
	}
	return m.proj
}

// GenerationLogits berechnet Vokabular-Logits ueber die
// Generations-Projektion. Verweigert mit ConsistencyError, solange der
// Guard nicht aufgeloest ist.
func (m *Model) GenerationLogits(h []float64) ([]float64, error) {
	if err := m.RequireGenerationReady(); err != nil {
		return nil, err
	}
	if m.tie == TieShared {
		return rowLogits(m.emb, h), nil
	}
	return rowLogits(m.proj, h), nil
}
