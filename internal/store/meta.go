package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MarkAlerted records that the signal with key has been delivered.
func (s *Store) MarkAlerted(ctx context.Context, key, ticker string, at time.Time) error {
	_, err := s.writeDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO alerts (key, ticker, alerted_at) VALUES (?, ?, ?)",
		key, ticker, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	return nil
}

func (s *Store) WasAlerted(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.readDB.QueryRowContext(ctx, "SELECT 1 FROM alerts WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying alerts: %w", err)
	}
	return true, nil
}

func tokenKeys(month string) (prompt, completion string) {
	return "tokens_prompt:" + month, "tokens_completion:" + month
}

// TokenUsage returns the AI tokens spent in month ("2006-01").
func (s *Store) TokenUsage(ctx context.Context, month string) (prompt, completion int64, err error) {
	pk, ck := tokenKeys(month)
	if prompt, err = s.metaInt(ctx, pk); err != nil {
		return 0, 0, err
	}
	if completion, err = s.metaInt(ctx, ck); err != nil {
		return 0, 0, err
	}
	return prompt, completion, nil
}

// AddTokenUsage adds to the month's running token totals.
func (s *Store) AddTokenUsage(ctx context.Context, month string, prompt, completion int64) error {
	pk, ck := tokenKeys(month)
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = CAST(meta.value AS INTEGER) + CAST(excluded.value AS INTEGER)
	`
	if _, err := tx.ExecContext(ctx, upsert, pk, strconv.FormatInt(prompt, 10)); err != nil {
		return fmt.Errorf("updating token usage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, ck, strconv.FormatInt(completion, 10)); err != nil {
		return fmt.Errorf("updating token usage: %w", err)
	}
	return tx.Commit()
}

func (s *Store) metaInt(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.readDB.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
