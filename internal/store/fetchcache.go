package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

// FetchCache is a ttlcache.Cache persisted in the history database, so
// separate CLI invocations inside the TTL share fetched payloads.
type FetchCache struct {
	s   *Store
	now func() time.Time
}

var _ ttlcache.Cache = (*FetchCache)(nil)

func (s *Store) FetchCache() *FetchCache {
	return &FetchCache{s: s, now: time.Now}
}

func (c *FetchCache) Get(ctx context.Context, key string) (ttlcache.Entry, bool, error) {
	var (
		data      []byte
		storedAt  int64
		expiresAt int64
	)
	err := c.s.readDB.QueryRowContext(ctx,
		"SELECT data, stored_at, expires_at FROM fetch_cache WHERE key = ?", key,
	).Scan(&data, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ttlcache.Entry{}, false, nil
	}
	if err != nil {
		return ttlcache.Entry{}, false, fmt.Errorf("reading fetch cache: %w", err)
	}
	if expiresAt > 0 && c.now().UnixMilli() > expiresAt {
		return ttlcache.Entry{}, false, nil
	}
	return ttlcache.Entry{Data: data, StoredAt: time.UnixMilli(storedAt)}, true, nil
}

func (c *FetchCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := c.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	_, err := c.s.writeDB.ExecContext(ctx, `
		INSERT INTO fetch_cache (key, data, stored_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, data, now.UnixMilli(), expiresAt)
	if err != nil {
		return fmt.Errorf("writing fetch cache: %w", err)
	}
	return nil
}

func (c *FetchCache) Delete(ctx context.Context, key string) error {
	_, err := c.s.writeDB.ExecContext(ctx, "DELETE FROM fetch_cache WHERE key = ?", key)
	return err
}
