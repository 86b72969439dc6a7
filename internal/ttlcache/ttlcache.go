// Package ttlcache stores fetched payloads for a bounded time so repeated
// scans inside the refresh window do not hit the network again.
package ttlcache

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached payload with the time it was stored.
type Entry struct {
	Data     []byte    `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

// Age reports how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Cache is a byte cache with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memEntry struct {
	Entry
	exp time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// Memory is an in-process Cache. Expired entries are evicted on read.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]memEntry), now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	now := c.now()
	if !e.expired(now) {
		return e.Entry, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A Set may have replaced the entry since the read lock was released.
	if cur, ok := c.m[key]; ok {
		if !cur.expired(now) {
			return cur.Entry, true, nil
		}
		delete(c.m, key)
	}
	return Entry{}, false, nil
}

// Set stores data under key. A non-positive ttl never expires.
func (c *Memory) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.mu.Lock()
	c.m[key] = memEntry{Entry: Entry{Data: buf, StoredAt: now}, exp: exp}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}
