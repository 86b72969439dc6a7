// Package store keeps the scan history, the alert ledger and refresh
// bookkeeping in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrScanNotFound is returned when no scan matches the requested id.
var ErrScanNotFound = errors.New("scan not found")

type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Times are stored as unix milliseconds so range queries compare numerically.
func (s *Store) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			id            TEXT PRIMARY KEY,
			started_at    INTEGER NOT NULL,
			signal_count  INTEGER NOT NULL,
			source_errors TEXT NOT NULL DEFAULT '[]',
			counts        TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at DESC);

		CREATE TABLE IF NOT EXISTS signals (
			scan_id  TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			kind     TEXT NOT NULL,
			ticker   TEXT NOT NULL,
			title    TEXT NOT NULL DEFAULT '',
			link     TEXT NOT NULL DEFAULT '',
			payload  TEXT NOT NULL,
			PRIMARY KEY (scan_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_signals_ticker ON signals(ticker);

		CREATE TABLE IF NOT EXISTS alerts (
			key        TEXT PRIMARY KEY,
			ticker     TEXT NOT NULL DEFAULT '',
			alerted_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS fetch_cache (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			stored_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	return errors.Join(errs...)
}
