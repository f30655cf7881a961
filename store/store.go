// Modul: store.go
// Beschreibung: Persistenz fuer Unlearning-Runs. Speichert Run-Metadaten,
// den Metrik-Strom pro Schritt und das ImportanceRanking in SQLite.

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store ist die oeffentliche Persistenz-API. Die Datenbank wird beim
// ersten Zugriff lazy initialisiert.
type Store struct {
	// Path ist der Pfad zur SQLite-Datei.
	Path string

	// dbMu protects database initialization only
	dbMu sync.Mutex
	db   *database
}

// Run-Status-Werte.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// Run sind die Metadaten eines Unlearning-Runs.
type Run struct {
	ID         string
	Config     string
	Status     string
	FinalStep  int
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// StepMetrics ist eine Zeile des persistierten Metrik-Stroms.
type StepMetrics struct {
	Step        int
	LossUnlearn float64
	LossRetain  float64
	ForgetProb  float64
}

// RankingEntry ist eine Zeile des persistierten ImportanceRankings.
type RankingEntry struct {
	Rank  int
	Token int
	Score float64
}

func (s *Store) ensureDB() error {
	// Fast path: check if db is already initialized
	if s.db != nil {
		return nil
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	// Double-check after acquiring lock
	if s.db != nil {
		return nil
	}

	if s.Path == "" {
		return fmt.Errorf("store: no database path configured")
	}

	db, err := newDatabase(s.Path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// Close schliesst die Datenbank.
func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// CreateRun legt einen neuen Run an und gibt seine ID zurueck.
func (s *Store) CreateRun(config string) (string, error) {
	if err := s.ensureDB(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.db.conn.Exec(
		"INSERT INTO runs (id, config) VALUES (?, ?)", id, config); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun setzt Status und finalen Schritt eines Runs.
func (s *Store) FinishRun(id, status string, finalStep int) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	if _, err := s.db.conn.Exec(
		"UPDATE runs SET status = ?, final_step = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, finalStep, id); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs listet alle Runs, neueste zuerst.
func (s *Store) Runs() ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.Query(
		"SELECT id, config, status, final_step, created_at, finished_at FROM runs ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Config, &r.Status, &r.FinalStep, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolveRun loest eine Run-ID oder ein eindeutiges Praefix auf.
func (s *Store) ResolveRun(prefix string) (string, error) {
	if err := s.ensureDB(); err != nil {
		return "", err
	}
	rows, err := s.db.conn.Query(
		"SELECT id FROM runs WHERE id LIKE ? || '%' LIMIT 2", prefix)
	if err != nil {
		return "", fmt.Errorf("resolve run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no run matches %q", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run prefix %q is ambiguous", prefix)
	}
}

// GetRun laedt die Metadaten eines Runs.
func (s *Store) GetRun(id string) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}
	var r Run
	err := s.db.conn.QueryRow(
		"SELECT id, config, status, final_step, created_at, finished_at FROM runs WHERE id = ?", id,
	).Scan(&r.ID, &r.Config, &r.Status, &r.FinalStep, &r.CreatedAt, &r.FinishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// RecordMetrics haengt eine Metrik-Zeile an den Strom eines Runs an.
func (s *Store) RecordMetrics(runID string, m StepMetrics) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	if _, err := s.db.conn.Exec(
		"INSERT INTO metrics (run_id, step, loss_unlearn, loss_retain, forget_prob) VALUES (?, ?, ?, ?, ?)",
		runID, m.Step, m.LossUnlearn, m.LossRetain, m.ForgetProb); err != nil {
		return fmt.Errorf("record metrics: %w", err)
	}
	return nil
}

// Metrics gibt den Metrik-Strom eines Runs in Schritt-Reihenfolge zurueck.
func (s *Store) Metrics(runID string) ([]StepMetrics, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.Query(
		"SELECT step, loss_unlearn, loss_retain, forget_prob FROM metrics WHERE run_id = ? ORDER BY step", runID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []StepMetrics
	for rows.Next() {
		var m StepMetrics
		if err := rows.Scan(&m.Step, &m.LossUnlearn, &m.LossRetain, &m.ForgetProb); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveRanking persistiert das ImportanceRanking eines Runs in einer
// Transaktion.
func (s *Store) SaveRanking(runID string, entries []RankingEntry) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin ranking transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO rankings (run_id, rank, token, score) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare ranking insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(runID, e.Rank, e.Token, e.Score); err != nil {
			return fmt.Errorf("insert ranking entry: %w", err)
		}
	}
	return tx.Commit()
}

// Ranking gibt die obersten limit Eintraege des Rankings zurueck;
// limit <= 0 heisst alle.
func (s *Store) Ranking(runID string, limit int) ([]RankingEntry, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	query := "SELECT rank, token, score FROM rankings WHERE run_id = ? ORDER BY rank"
	args := []any{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var out []RankingEntry
	for rows.Next() {
		var e RankingEntry
		if err := rows.Scan(&e.Rank, &e.Token, &e.Score); err != nil {
			return nil, fmt.Errorf("scan ranking entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
