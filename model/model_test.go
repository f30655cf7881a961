// model_test.go - Tests fuer Modell-Handle und Consistency Guard
package model

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/lethe-ml/lethe/ml"
	"github.com/lethe-ml/lethe/types/errtypes"
)

// identity ist der minimale Transformer fuer Handle-Tests: Hidden-States
// sind die Input-Embeddings, der VJP ist die Identitaet.
type identity struct{ dim int }

func (i identity) Dim() int { return i.dim }

func (i identity) Forward(_ context.Context, embeds *mat.Dense) (*mat.Dense, ml.VJP, error) {
	out := mat.DenseCopyOf(embeds)
	return out, func(g *mat.Dense) *mat.Dense { return mat.DenseCopyOf(g) }, nil
}

func testTable(vocab, dim int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	table := mat.NewDense(vocab, dim, nil)
	for i := 0; i < vocab; i++ {
		for j := 0; j < dim; j++ {
			table.Set(i, j, rng.NormFloat64())
		}
	}
	return table
}

func TestNewValidation(t *testing.T) {
	table := testTable(4, 3, 1)

	tests := []struct {
		name        string
		transformer ml.Transformer
		table       *mat.Dense
	}{
		{name: "nil transformer", transformer: nil, table: table},
		{name: "dimension mismatch", transformer: identity{dim: 7}, table: table},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.transformer, tt.table, TieShared)
			if !errors.Is(err, errtypes.ErrConfiguration) {
				t.Errorf("New() error = %v, erwartet ErrConfiguration", err)
			}
		})
	}
}

func TestTableIsCopied(t *testing.T) {
	table := testTable(4, 3, 2)
	m, err := New(identity{dim: 3}, table, TieShared)
	if err != nil {
		t.Fatal(err)
	}

	// Mutation der Aufrufer-Tabelle darf das Handle nicht beruehren.
	before, _ := m.Embedding(0)
	table.Set(0, 0, 999)
	after, _ := m.Embedding(0)
	for j := range before {
		if before[j] != after[j] {
			t.Fatal("Handle teilt Speicher mit der Aufrufer-Tabelle")
		}
	}
}

func TestApplyRowUpdate(t *testing.T) {
	m, err := New(identity{dim: 3}, testTable(4, 3, 3), TieShared)
	if err != nil {
		t.Fatal(err)
	}

	before, _ := m.Embedding(1)
	if err := m.ApplyRowUpdate(1, []float64{1, -2, 0.5}); err != nil {
		t.Fatal(err)
	}
	after, _ := m.Embedding(1)
	want := []float64{before[0] + 1, before[1] - 2, before[2] + 0.5}
	for j := range want {
		if after[j] != want[j] {
			t.Errorf("Zeile[%d] = %v, erwartet %v", j, after[j], want[j])
		}
	}
	if m.Mutations() != 1 {
		t.Errorf("Mutations = %d, erwartet 1", m.Mutations())
	}

	// Fehlerfaelle aendern den Zaehler nicht.
	if err := m.ApplyRowUpdate(99, []float64{0, 0, 0}); err == nil {
		t.Error("out-of-vocabulary Update ohne Fehler")
	}
	if err := m.ApplyRowUpdate(0, []float64{1}); err == nil {
		t.Error("Dimensions-Mismatch ohne Fehler")
	}
	if m.Mutations() != 1 {
		t.Errorf("Mutations nach Fehlern = %d, erwartet 1", m.Mutations())
	}
}

func TestEmbedSequence(t *testing.T) {
	m, err := New(identity{dim: 2}, testTable(3, 2, 4), TieShared)
	if err != nil {
		t.Fatal(err)
	}

	embeds, err := m.EmbedSequence([]int{0, 2, 0})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := embeds.Dims(); r != 3 || c != 2 {
		t.Errorf("Shape = %dx%d, erwartet 3x2", r, c)
	}

	if _, err := m.EmbedSequence(nil); err == nil {
		t.Error("leere Sequenz ohne Fehler")
	}
	if _, err := m.EmbedSequence([]int{0, 5}); err == nil {
		t.Error("out-of-vocabulary Token ohne Fehler")
	}
}

func TestGuardTieShared(t *testing.T) {
	m, err := New(identity{dim: 2}, testTable(3, 2, 5), TieShared)
	if err != nil {
		t.Fatal(err)
	}

	// Shared: strukturell konsistent, auch direkt nach Mutationen.
	if err := m.ApplyRowUpdate(0, []float64{1, 1}); err != nil {
		t.Fatal(err)
	}
	if !m.GenerationReady() {
		t.Error("TieShared nach Mutation nicht generation-ready")
	}
	if _, err := m.GenerationLogits([]float64{1, 0}); err != nil {
		t.Errorf("GenerationLogits: %v", err)
	}
}

func TestGuardFailsClosed(t *testing.T) {
	m, err := New(identity{dim: 2}, testTable(3, 2, 6), TieResync)
	if err != nil {
		t.Fatal(err)
	}

	// Frisch geladen: Projektion ist Kopie der Tabelle, Generation erlaubt.
	if !m.GenerationReady() {
		t.Fatal("frisches Modell nicht generation-ready")
	}

	// Nach einer Mutation ohne Resync: Generation verweigert.
	if err := m.ApplyRowUpdate(0, []float64{1, 1}); err != nil {
		t.Fatal(err)
	}
	if m.GenerationReady() {
		t.Error("stale Projektion gilt als generation-ready")
	}
	var consistency *errtypes.ConsistencyError
	if _, err := m.GenerationLogits([]float64{1, 0}); !errors.As(err, &consistency) {
		t.Errorf("GenerationLogits error = %v, erwartet ConsistencyError", err)
	} else if consistency.Mutations != 1 {
		t.Errorf("ConsistencyError.Mutations = %d, erwartet 1", consistency.Mutations)
	}

	// Resync loest den Guard auf.
	m.Resync()
	if !m.GenerationReady() {
		t.Error("nach Resync nicht generation-ready")
	}
}

func TestResyncIdempotent(t *testing.T) {
	m, err := New(identity{dim: 2}, testTable(3, 2, 7), TieResync)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ApplyRowUpdate(1, []float64{0.5, -0.5}); err != nil {
		t.Fatal(err)
	}

	m.Resync()
	first := mat.DenseCopyOf(m.Projection().(*mat.Dense))
	m.Resync()
	second := m.Projection().(*mat.Dense)

	// Zwei Resyncs ohne zwischenzeitliche Mutation: bit-identisch.
	if !mat.Equal(first, second) {
		t.Error("Resync ist nicht idempotent")
	}
	if !mat.Equal(second, m.CloneTable()) {
		t.Error("Projektion weicht nach Resync von der Tabelle ab")
	}
}

func TestSnapshotIsFrozen(t *testing.T) {
	m, err := New(identity{dim: 2}, testTable(3, 2, 8), TieShared)
	if err != nil {
		t.Fatal(err)
	}

	snap := m.Snapshot()
	hBefore, err := snap.Forward(context.Background(), []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}

	// Mutation des Modells darf den Snapshot nicht beeinflussen.
	if err := m.ApplyRowUpdate(0, []float64{10, 10}); err != nil {
		t.Fatal(err)
	}
	hAfter, err := snap.Forward(context.Background(), []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(hBefore, hAfter) {
		t.Error("Snapshot-Forward aendert sich mit dem Modell")
	}
}
