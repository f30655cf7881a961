// checkpoint_test.go - Tests fuer das binaere Checkpoint-Format
package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCheckpointRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.ltck")
	table := testTable(5, 3, 10)

	if err := WriteTable(path, table); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTable(path)
	if err != nil {
		t.Fatal(err)
	}

	// Float64 roh serialisiert: Roundtrip muss bit-exakt sein.
	if !mat.Equal(table, got) {
		t.Error("Roundtrip veraendert die Tabelle")
	}
}

func TestCheckpointOverwriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.ltck")
	first := testTable(4, 2, 11)
	second := testTable(4, 2, 12)

	if err := WriteTable(path, first); err != nil {
		t.Fatal(err)
	}
	if err := WriteTable(path, second); err != nil {
		t.Fatal(err)
	}

	got, err := ReadTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(second, got) {
		t.Error("Ueberschreiben liefert nicht den zweiten Stand")
	}

	// Keine Temp-Dateien zurueckgelassen.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("Temp-Datei %s nicht aufgeraeumt", e.Name())
		}
	}
}

func TestCheckpointCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.ltck")
	if err := WriteTable(path, testTable(3, 2, 13)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr string
	}{
		{
			name:    "falsches Magic",
			mutate:  func(b []byte) []byte { b[0] = 'X'; return b },
			wantErr: "bad magic",
		},
		{
			name:    "unbekannte Version",
			mutate:  func(b []byte) []byte { b[4] = 99; return b },
			wantErr: "unsupported version",
		},
		{
			name:    "gekippte Payload-Bits",
			mutate:  func(b []byte) []byte { b[30] ^= 0xff; return b },
			wantErr: "digest mismatch",
		},
		{
			name:    "abgeschnitten",
			mutate:  func(b []byte) []byte { return b[:10] },
			wantErr: "truncated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := filepath.Join(dir, "corrupt.ltck")
			buf := make([]byte, len(data))
			copy(buf, data)
			if err := os.WriteFile(corrupt, tt.mutate(buf), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := ReadTable(corrupt)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ReadTable error = %v, erwartet %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRestoreCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.ltck")
	m, err := New(identity{dim: 2}, testTable(3, 2, 14), TieShared)
	if err != nil {
		t.Fatal(err)
	}

	initial := m.CloneTable()
	if err := m.SaveCheckpoint(path); err != nil {
		t.Fatal(err)
	}

	if err := m.ApplyRowUpdate(0, []float64{5, 5}); err != nil {
		t.Fatal(err)
	}
	if mat.Equal(initial, m.CloneTable()) {
		t.Fatal("Update hat die Tabelle nicht veraendert")
	}

	if err := m.RestoreCheckpoint(path); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(initial, m.CloneTable()) {
		t.Error("Restore stellt den gespeicherten Stand nicht her")
	}
}
