// snapshot.go - Teacher-Snapshot fuer die Retention-Referenz
//
// Der Snapshot ist eine unveraenderliche Kopie von (EmbeddingTable0,
// FrozenTransformer, OutputProjection0), aufgenommen bevor das Unlearning
// beginnt. Er dient ausschliesslich der Berechnung von
// Referenz-Verteilungen und darf von beliebig vielen Lesern ohne Locking
// geteilt werden.
package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
)

// Snapshot is the frozen teacher model taken at Init time.
type Snapshot struct {
	vocab, dim  int
	emb         *mat.Dense // deep copy, never mutated
	transformer ml.Transformer
}

// Snapshot nimmt eine unveraenderliche Kopie des aktuellen Zustands.
// Der Transformer selbst ist eingefroren und wird geteilt, die Tabelle
// wird tief kopiert.
func (m *Model) Snapshot() *Snapshot {
	return &Snapshot{
		vocab:       m.vocab,
		dim:         m.dim,
		emb:         mat.DenseCopyOf(m.emb),
		transformer: m.transformer,
	}
}

func (s *Snapshot) Vocab() int { return s.vocab }
func (s *Snapshot) Dim() int   { return s.dim }

// Forward berechnet Hidden-States ueber die eingefrorene Ausgangstabelle.
// Kein VJP: durch den Snapshot fliessen nie Gradienten.
func (s *Snapshot) Forward(ctx context.Context, tokens []int) (*mat.Dense, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	embeds := mat.NewDense(len(tokens), s.dim, nil)
	for t, id := range tokens {
		if id < 0 || id >= s.vocab {
			return nil, fmt.Errorf("token %d out of vocabulary [0,%d)", id, s.vocab)
		}
		embeds.SetRow(t, s.emb.RawRowView(id))
	}
	hidden, _, err := s.transformer.Forward(ctx, embeds)
	return hidden, err
}

// TableLogits berechnet Vokabular-Logits gegen die Ausgangstabelle.
func (s *Snapshot) TableLogits(h []float64) []float64 {
	return rowLogits(s.emb, h)
}
