package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

// Scan is one recorded run of the pipeline.
type Scan struct {
	ID           string
	StartedAt    time.Time
	SignalCount  int
	SourceErrors []string
	Counts       map[string]int // raw items per source stream
}

type Stats struct {
	Scans     int
	Signals   int
	Alerts    int
	SizeBytes int64
}

// RecordScan stores the signals of one scan in order and returns the new
// scan with its generated id.
func (s *Store) RecordScan(ctx context.Context, startedAt time.Time, signals []signal.Signal, counts map[string]int, sourceErrors []string) (Scan, error) {
	for i, sig := range signals {
		if err := sig.Validate(); err != nil {
			return Scan{}, fmt.Errorf("signal %d: %w", i, err)
		}
	}
	scan := Scan{
		ID:           uuid.NewString(),
		StartedAt:    startedAt.UTC().Truncate(time.Millisecond),
		SignalCount:  len(signals),
		SourceErrors: sourceErrors,
		Counts:       counts,
	}
	if scan.SourceErrors == nil {
		scan.SourceErrors = []string{}
	}
	if scan.Counts == nil {
		scan.Counts = map[string]int{}
	}

	errsJSON, err := json.Marshal(scan.SourceErrors)
	if err != nil {
		return Scan{}, err
	}
	countsJSON, err := json.Marshal(scan.Counts)
	if err != nil {
		return Scan{}, err
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return Scan{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scans (id, started_at, signal_count, source_errors, counts) VALUES (?, ?, ?, ?, ?)`,
		scan.ID, scan.StartedAt.UnixMilli(), scan.SignalCount, string(errsJSON), string(countsJSON),
	); err != nil {
		return Scan{}, fmt.Errorf("inserting scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals (scan_id, position, kind, ticker, title, link, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Scan{}, err
	}
	defer stmt.Close()

	for i, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return Scan{}, fmt.Errorf("encoding signal %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, scan.ID, i, string(sig.Kind), sig.Ticker, sig.Title, sig.Link, string(payload)); err != nil {
			return Scan{}, fmt.Errorf("inserting signal %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Scan{}, err
	}
	return scan, nil
}

const scanColumns = "id, started_at, signal_count, source_errors, counts"

// ListScans returns the most recent scans, newest first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT "+scanColumns+" FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// LatestScan returns the most recent scan or ErrScanNotFound.
func (s *Store) LatestScan(ctx context.Context) (Scan, error) {
	scans, err := s.ListScans(ctx, 1)
	if err != nil {
		return Scan{}, err
	}
	if len(scans) == 0 {
		return Scan{}, ErrScanNotFound
	}
	return scans[0], nil
}

// GetScan looks a scan up by full id or unique id prefix.
func (s *Store) GetScan(ctx context.Context, id string) (Scan, error) {
	if id == "" {
		return Scan{}, ErrScanNotFound
	}
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT "+scanColumns+" FROM scans WHERE id = ? OR id LIKE ? || '%' LIMIT 2", id, id)
	if err != nil {
		return Scan{}, fmt.Errorf("querying scan: %w", err)
	}
	defer rows.Close()

	var found []Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return Scan{}, err
		}
		found = append(found, sc)
	}
	if err := rows.Err(); err != nil {
		return Scan{}, err
	}
	switch len(found) {
	case 0:
		return Scan{}, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	case 1:
		return found[0], nil
	default:
		for _, sc := range found {
			if sc.ID == id {
				return sc, nil
			}
		}
		return Scan{}, fmt.Errorf("scan id prefix %q is ambiguous", id)
	}
}

// ScanSignals returns the signals of a scan in the order they were recorded.
func (s *Store) ScanSignals(ctx context.Context, scanID string) ([]signal.Signal, error) {
	var exists int
	err := s.readDB.QueryRowContext(ctx, "SELECT 1 FROM scans WHERE id = ?", scanID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scan: %w", err)
	}

	rows, err := s.readDB.QueryContext(ctx,
		"SELECT kind, payload FROM signals WHERE scan_id = ? ORDER BY position", scanID)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var out []signal.Signal
	for rows.Next() {
		var label, payload string
		if err := rows.Scan(&label, &payload); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		kind, err := signal.ParseKind(label)
		if err != nil {
			return nil, fmt.Errorf("decoding signal: %w", err)
		}
		var sig signal.Signal
		if err := json.Unmarshal([]byte(payload), &sig); err != nil {
			return nil, fmt.Errorf("decoding signal: %w", err)
		}
		sig.Kind = kind
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Prune deletes scans, their signals and alert records older than olderThan,
// then reclaims disk space. It returns the number of scans removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM signals WHERE scan_id IN (SELECT id FROM scans WHERE started_at < ?)", cutoff); err != nil {
		return 0, fmt.Errorf("pruning signals: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM scans WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning scans: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM alerts WHERE alerted_at < ?", cutoff); err != nil {
		return 0, fmt.Errorf("pruning alerts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fetch_cache WHERE expires_at > 0 AND expires_at < ?", time.Now().UnixMilli()); err != nil {
		return 0, fmt.Errorf("pruning fetch cache: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		if _, err := s.writeDB.ExecContext(ctx, "VACUUM"); err != nil {
			return deleted, fmt.Errorf("vacuum: %w", err)
		}
	}
	return deleted, nil
}

// Stats counts rows and reports the database file size at dbPath.
func (s *Store) Stats(ctx context.Context, dbPath string) (Stats, error) {
	var st Stats
	err := s.readDB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM scans),
			(SELECT COUNT(*) FROM signals),
			(SELECT COUNT(*) FROM alerts)
	`).Scan(&st.Scans, &st.Signals, &st.Alerts)
	if err != nil {
		return Stats{}, fmt.Errorf("counting rows: %w", err)
	}
	fi, err := os.Stat(dbPath)
	if err != nil {
		return Stats{}, fmt.Errorf("stat %s: %w", dbPath, err)
	}
	st.SizeBytes = fi.Size()
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (Scan, error) {
	var (
		sc         Scan
		startedAt  int64
		errsJSON   string
		countsJSON string
	)
	if err := r.Scan(&sc.ID, &startedAt, &sc.SignalCount, &errsJSON, &countsJSON); err != nil {
		return Scan{}, fmt.Errorf("scanning scan: %w", err)
	}
	sc.StartedAt = time.UnixMilli(startedAt).UTC()
	if err := json.Unmarshal([]byte(errsJSON), &sc.SourceErrors); err != nil {
		return Scan{}, fmt.Errorf("decoding source errors: %w", err)
	}
	if err := json.Unmarshal([]byte(countsJSON), &sc.Counts); err != nil {
		return Scan{}, fmt.Errorf("decoding counts: %w", err)
	}
	return sc, nil
}
