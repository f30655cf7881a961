// database.go - Kern-Datenbank-Funktionen
// Enthält: database struct, newDatabase, Close, init, Schema

package store

import (
	"fmt"

	"database/sql"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion definiert die aktuelle Datenbank-Schema-Version.
// Wird bei Schema-Änderungen erhöht, die Migrationen erfordern.
const currentSchemaVersion = 1

// database umhüllt die SQLite-Verbindung.
// SQLite verwaltet sein eigenes Locking für konkurrierende Zugriffe;
// WAL-Modus erlaubt Lesern, Schreiber nicht zu blockieren. Daher
// benötigen wir keine Application-Level-Locks für Datenbankoperationen.
type database struct {
	conn *sql.DB
}

// newDatabase erstellt eine neue Datenbankverbindung
func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verbindung testen
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}

	// Schema initialisieren
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

// Close schließt die Datenbankverbindung
func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

// init initialisiert das Datenbankschema
func (db *database) init() error {
	if _, err := db.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);
	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		config TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		final_step INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		loss_unlearn REAL NOT NULL,
		loss_retain REAL NOT NULL,
		forget_prob REAL NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_run_step ON metrics(run_id, step);

	CREATE TABLE IF NOT EXISTS rankings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		token INTEGER NOT NULL,
		score REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_rankings_run ON rankings(run_id, rank);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return db.migrate()
}

// getSchemaVersion gibt die aktuelle Schema-Version zurück
func (db *database) getSchemaVersion() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT schema_version FROM meta").Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

// migrate führt Datenbank-Schema-Migrationen durch
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	for version < currentSchemaVersion {
		switch version {
		default:
			return fmt.Errorf("unknown schema version %d", version)
		}
	}

	return nil
}
