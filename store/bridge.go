// bridge.go - Anbindung von Trainer und Importance-Analyse an den Store
//
// Enthaelt: SinkFor (Metrik-Strom -> Datenbank) und SaveResult
// (ImportanceRanking -> Datenbank).
package store

import (
	"log/slog"

	"github.com/lethe-ml/lethe/importance"
	"github.com/lethe-ml/lethe/trainer"
)

// SinkFor gibt eine trainer.Sink zurueck, die jeden Schritt des Runs
// persistiert. Persistenz-Fehler werden geloggt, nicht propagiert: der
// Metrik-Strom ist Beobachtung und darf den Run nie abbrechen.
func (s *Store) SinkFor(runID string) trainer.Sink {
	return func(m trainer.Metrics) {
		err := s.RecordMetrics(runID, StepMetrics{
			Step:        m.Step,
			LossUnlearn: m.LossUnlearn,
			LossRetain:  m.LossRetain,
			ForgetProb:  m.ForgetProb,
		})
		if err != nil {
			slog.Warn("metrics not persisted", "run", runID, "step", m.Step, "error", err)
		}
	}
}

// SaveResult persistiert das Ranking einer Importance-Analyse.
func (s *Store) SaveResult(runID string, res *importance.Result) error {
	ranking := res.Ranking()
	entries := make([]RankingEntry, len(ranking))
	for i, rt := range ranking {
		entries[i] = RankingEntry{Rank: rt.Rank, Token: rt.Token, Score: rt.Score}
	}
	return s.SaveRanking(runID, entries)
}
