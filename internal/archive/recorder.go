// internal/archive/recorder.go

// Package archive persists gateway readings into a local SQLite database.
// One row per (minute, series); re-polling within the same minute replaces
// the row, mirroring the upsert the original supervisory tooling used.
package archive

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Reading is one named value extracted from a poll snapshot.
type Reading struct {
	Name  string
	Value float64
}

// Recorder owns the readings database.
type Recorder struct {
	db *sql.DB
}

// Open opens (creating if needed) the readings database.
func Open(path string) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("archive: database path required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS readings (
	time  TEXT NOT NULL,
	name  TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (time, name)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Recorder{db: db}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Store writes a batch of readings stamped with at, truncated to the
// minute. All-or-nothing per batch.
func (r *Recorder) Store(at time.Time, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stamp := at.Truncate(time.Minute).Format(time.RFC3339)
	for _, rd := range readings {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO readings (time, name, value) VALUES (?, ?, ?)`,
			stamp, rd.Name, rd.Value,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
