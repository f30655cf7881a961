// checkpoint.go - Binaere Checkpoints der Embedding-Tabelle
//
// Format (little endian):
//   4 Byte Magic "LTCK" | uint32 Version | uint64 Vocab | uint64 Dim |
//   Vocab*Dim float64 row-major | 32 Byte SHA-256 ueber den Payload
//
// Geschrieben wird immer ueber eine Temp-Datei im Zielverzeichnis mit
// anschliessendem os.Rename: Leser sehen nie einen partiellen Checkpoint.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

var ckptMagic = [4]byte{'L', 'T', 'C', 'K'}

const ckptVersion uint32 = 1

// SaveCheckpoint schreibt die aktuelle Embedding-Tabelle atomar nach path.
func (m *Model) SaveCheckpoint(path string) error {
	// Konsistenter Schnappschuss: der Trainer ist der einzige Schreiber
	// und ruft Save nur zwischen Optimizer-Schritten auf, die Kopie
	// entkoppelt den Dateischreibvorgang trotzdem vom Handle.
	return WriteTable(path, m.emb)
}

// RestoreCheckpoint laedt einen Checkpoint und ersetzt die Tabelle.
func (m *Model) RestoreCheckpoint(path string) error {
	table, err := ReadTable(path)
	if err != nil {
		return err
	}
	return m.SetTable(table)
}

// WriteTable serialisiert eine Tabelle atomar nach path.
func WriteTable(path string, table *mat.Dense) error {
	vocab, dim := table.Dims()

	var buf bytes.Buffer
	buf.Write(ckptMagic[:])
	binary.Write(&buf, binary.LittleEndian, ckptVersion)
	binary.Write(&buf, binary.LittleEndian, uint64(vocab))
	binary.Write(&buf, binary.LittleEndian, uint64(dim))

	payload := make([]byte, vocab*dim*8)
	for r := 0; r < vocab; r++ {
		row := table.RawRowView(r)
		for c, v := range row {
			binary.LittleEndian.PutUint64(payload[(r*dim+c)*8:], math.Float64bits(v))
		}
	}
	buf.Write(payload)

	digest := sha256.Sum256(payload)
	buf.Write(digest[:])

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	slog.Debug("checkpoint written", "path", path, "vocab", vocab, "dim", dim)
	return nil
}

// ReadTable laedt eine Tabelle aus einem Checkpoint und verifiziert
// Magic, Version und Digest.
func ReadTable(path string) (*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(data) < 4+4+8+8+sha256.Size {
		return nil, fmt.Errorf("checkpoint %s: truncated", path)
	}
	if !bytes.Equal(data[:4], ckptMagic[:]) {
		return nil, fmt.Errorf("checkpoint %s: bad magic", path)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != ckptVersion {
		return nil, fmt.Errorf("checkpoint %s: unsupported version %d", path, v)
	}
	vocab := int(binary.LittleEndian.Uint64(data[8:]))
	dim := int(binary.LittleEndian.Uint64(data[16:]))

	want := 24 + vocab*dim*8 + sha256.Size
	if len(data) != want {
		return nil, fmt.Errorf("checkpoint %s: size %d, want %d", path, len(data), want)
	}

	payload := data[24 : 24+vocab*dim*8]
	digest := sha256.Sum256(payload)
	if !bytes.Equal(digest[:], data[len(data)-sha256.Size:]) {
		return nil, fmt.Errorf("checkpoint %s: digest mismatch", path)
	}

	values := make([]float64, vocab*dim)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return mat.NewDense(vocab, dim, values), nil
}
