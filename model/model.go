// model.go - Modell-Handle mit Embedding-Tabelle und Output-Projektion
//
// Dieses Modul enthaelt:
// - TieMode: Kopplung zwischen Embedding-Tabelle und Output-Projektion
// - Model: Handle ueber die einzige trainierbare Ressource (Embedding-Tabelle)
// - Lese-Zugriffe (EmbedSequence, Forward, TableLogits) und die
//   Trainer-exklusiven Mutationen (ApplyRowUpdate, SetTable)
//
// Die Embedding-Tabelle gehoert waehrend eines Runs exklusiv dem
// Unlearning-Trainer; es gibt keinerlei internes Locking. Alle anderen
// Komponenten greifen nur lesend zu.
package model

import (
	"context"
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/types/errtypes"
)

// TieMode legt fest, wie die Output-Projektion an die Embedding-Tabelle
// gekoppelt ist.
type TieMode int

const (
	// TieShared: die Projektion ist eine Sicht auf die Embedding-Tabelle.
	// Konsistenz gilt strukturell, ein Resync ist nie noetig.
	TieShared TieMode = iota

	// TieResync: die Projektion wird separat gehalten und muss nach
	// Mutationen der Tabelle explizit abgeglichen werden. Vor dem ersten
	// Resync ist Generation gesperrt (fails closed).
	TieResync
)

func (t TieMode) String() string {
	switch t {
	case TieShared:
		return "shared"
	case TieResync:
		return "resync"
	default:
		return fmt.Sprintf("TieMode(%d)", int(t))
	}
}

// Model buendelt Embedding-Tabelle, eingefrorenen Transformer und
// Output-Projektion. Die Tabelle ist die einzige trainierbare Ressource.
type Model struct {
	vocab, dim  int
	tie         TieMode
	transformer ml.Transformer

	emb  *mat.Dense // vocab x dim, row-major
	proj *mat.Dense // nil in TieShared mode

	mutations atomic.Uint64 // bumped on every table mutation
	resynced  atomic.Uint64 // mutation count at the last resync
	synced    atomic.Bool   // at least one resync has happened
}

// New erstellt ein Modell-Handle. Die Tabelle wird kopiert; der Aufrufer
// behaelt keinen Durchgriff auf die interne Repraesentation.
func New(transformer ml.Transformer, table *mat.Dense, tie TieMode) (*Model, error) {
	vocab, dim := table.Dims()
	if vocab == 0 || dim == 0 {
		return nil, &errtypes.ConfigError{Field: "table", Reason: "empty embedding table"}
	}
	if transformer == nil {
		return nil, &errtypes.ConfigError{Field: "transformer", Reason: "nil transformer"}
	}
	if d := transformer.Dim(); d != dim {
		return nil, &errtypes.ConfigError{
			Field:  "transformer",
			Reason: fmt.Sprintf("dimension %d does not match embedding dimension %d", d, dim),
		}
	}

	m := &Model{
		vocab:       vocab,
		dim:         dim,
		tie:         tie,
		transformer: transformer,
		emb:         mat.DenseCopyOf(table),
	}
	if tie == TieResync {
		m.proj = mat.NewDense(vocab, dim, nil)
		// Projektion startet als Kopie der Ausgangstabelle, damit ein
		// frisch geladenes Modell sofort generieren kann.
		m.proj.Copy(m.emb)
		m.synced.Store(true)
	}
	return m, nil
}

func (m *Model) Vocab() int              { return m.vocab }
func (m *Model) Dim() int                { return m.dim }
func (m *Model) Tie() TieMode            { return m.tie }
func (m *Model) Mutations() uint64       { return m.mutations.Load() }
func (m *Model) Transformer() ml.Transformer { return m.transformer }

// Table gibt die Embedding-Tabelle als Nur-Lese-Matrix zurueck.
func (m *Model) Table() mat.Matrix { return m.emb }

// Embedding gibt eine Kopie der Embedding-Zeile fuer ein Token zurueck.
func (m *Model) Embedding(id int) ([]float64, error) {
	if id < 0 || id >= m.vocab {
		return nil, fmt.Errorf("token %d out of vocabulary [0,%d)", id, m.vocab)
	}
	out := make([]float64, m.dim)
	copy(out, m.emb.RawRowView(id))
	return out, nil
}

// EmbedSequence baut die T x dim Embedding-Matrix fuer eine Token-Folge.
func (m *Model) EmbedSequence(tokens []int) (*mat.Dense, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	out := mat.NewDense(len(tokens), m.dim, nil)
	for t, id := range tokens {
		if id < 0 || id >= m.vocab {
			return nil, fmt.Errorf("token %d out of vocabulary [0,%d)", id, m.vocab)
		}
		out.SetRow(t, m.emb.RawRowView(id))
	}
	return out, nil
}

// Forward berechnet Hidden-States fuer eine Token-Folge ueber den
// eingefrorenen Transformer. Der zurueckgegebene VJP bildet Kotangenten
// der Hidden-States auf Kotangenten der Input-Embeddings ab.
func (m *Model) Forward(ctx context.Context, tokens []int) (*mat.Dense, ml.VJP, error) {
	embeds, err := m.EmbedSequence(tokens)
	if err != nil {
		return nil, nil, err
	}
	return m.transformer.Forward(ctx, embeds)
}

// TableLogits berechnet Vokabular-Logits h . E^T gegen die aktuelle
// Tabelle. Das ist der Trainings-Pfad; der Generations-Pfad laeuft ueber
// GenerationLogits und die (ggf. separat gehaltene) Projektion.
func (m *Model) TableLogits(h []float64) []float64 {
	return rowLogits(m.emb, h)
}

// ApplyRowUpdate addiert delta auf eine Embedding-Zeile.
// Nur der Trainer ruft dies auf; jede Mutation erhoeht den Zaehler,
// der den Consistency Guard steuert.
func (m *Model) ApplyRowUpdate(id int, delta []float64) error {
	if id < 0 || id >= m.vocab {
		return fmt.Errorf("token %d out of vocabulary [0,%d)", id, m.vocab)
	}
	if len(delta) != m.dim {
		return fmt.Errorf("delta dimension %d, want %d", len(delta), m.dim)
	}
	row := m.emb.RawRowView(id)
	for i, d := range delta {
		row[i] += d
	}
	m.mutations.Add(1)
	return nil
}

// SetTable ersetzt die komplette Embedding-Tabelle (Rollback-Pfad).
func (m *Model) SetTable(table *mat.Dense) error {
	vocab, dim := table.Dims()
	if vocab != m.vocab || dim != m.dim {
		return fmt.Errorf("table shape %dx%d, want %dx%d", vocab, dim, m.vocab, m.dim)
	}
	m.emb.Copy(table)
	m.mutations.Add(1)
	return nil
}

// CloneTable gibt eine tiefe Kopie der aktuellen Tabelle zurueck.
func (m *Model) CloneTable() *mat.Dense {
	return mat.DenseCopyOf(m.emb)
}

func rowLogits(table *mat.Dense, h []float64) []float64 {
	vocab, dim := table.Dims()
	if len(h) != dim {
		panic(fmt.Sprintf("hidden dimension %d, want %d", len(h), dim))
	}
	out := make([]float64, vocab)
	hv := mat.NewVecDense(dim, h)
	ov := mat.NewVecDense(vocab, out)
	ov.MulVec(table, hv)
	return out
}
