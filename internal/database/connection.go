package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the registry database and makes sure the schema exists.
// driver is "sqlite3" or "postgres".
func Connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite3":
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
		db.SetMaxIdleConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN turns a plain path into a DSN with foreign keys and a busy timeout enabled
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate creates necessary tables if they don't exist
func Migrate(db *sqlx.DB) error {
	// Create participants table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			id TEXT PRIMARY KEY,
			session_identity TEXT NOT NULL DEFAULT '',
			study_condition TEXT NOT NULL DEFAULT '',
			submission_time TIMESTAMP NULL,
			forced_submission_memorization BOOLEAN NOT NULL DEFAULT FALSE,
			forced_submission_recall BOOLEAN NOT NULL DEFAULT FALSE,
			guessed_words INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create participants table: %w", err)
	}

	// Create memorized_words table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memorized_words (
			participant_id TEXT NOT NULL,
			word TEXT NOT NULL,
			added_at TIMESTAMP NOT NULL,
			PRIMARY KEY (participant_id, word),
			FOREIGN KEY (participant_id) REFERENCES participants(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create memorized_words table: %w", err)
	}

	// Create identities table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			context_key TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}

	return nil
}
