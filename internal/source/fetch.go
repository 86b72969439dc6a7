package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

// Stream names used for counts and errors.
const (
	StreamNews     = "news"
	StreamFilings  = "filings"
	StreamInsiders = "insiders"
)

// Fetcher produces one raw collection.
type Fetcher[T any] interface {
	Name() string
	Fetch(ctx context.Context) ([]T, error)
}

// SourceError records a collaborator that could not deliver. The stream
// contributes an empty collection to the scan.
type SourceError struct {
	Stream string
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source %s unavailable: %v", e.Stream, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Fetchers groups the three collaborators of a scan. A nil fetcher is
// treated as a disabled source.
type Fetchers struct {
	News     Fetcher[signal.NewsItem]
	Filings  Fetcher[signal.FilingEntry]
	Insiders Fetcher[signal.InsiderRow]
}

type FetchResult struct {
	Input  signal.Input
	Counts map[string]int
	Errors []*SourceError
}

// FetchAll runs the fetchers concurrently and collects whatever arrives.
func FetchAll(ctx context.Context, f Fetchers) FetchResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = FetchResult{Counts: map[string]int{}}
	)

	fail := func(stream, name string, err error) {
		result.Errors = append(result.Errors, &SourceError{Stream: stream, Source: name, Err: err})
	}

	if f.News != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := f.News.Fetch(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fail(StreamNews, f.News.Name(), err)
				return
			}
			result.Input.News = items
			result.Counts[StreamNews] = len(items)
		}()
	}
	if f.Filings != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := f.Filings.Fetch(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fail(StreamFilings, f.Filings.Name(), err)
				return
			}
			result.Input.Filings = items
			result.Counts[StreamFilings] = len(items)
		}()
	}
	if f.Insiders != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := f.Insiders.Fetch(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fail(StreamInsiders, f.Insiders.Name(), err)
				return
			}
			result.Input.Insiders = items
			result.Counts[StreamInsiders] = len(items)
		}()
	}

	wg.Wait()
	return result
}

// Cached serves a fetcher's last result from a TTL cache. Cache failures
// are logged and fall through to the network.
type Cached[T any] struct {
	inner Fetcher[T]
	cache ttlcache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCached[T any](inner Fetcher[T], c ttlcache.Cache, ttl time.Duration, log zerolog.Logger) *Cached[T] {
	return &Cached[T]{inner: inner, cache: c, ttl: ttl, log: log}
}

func (c *Cached[T]) Name() string { return c.inner.Name() }

func (c *Cached[T]) key() string { return "source:" + c.inner.Name() }

func (c *Cached[T]) Fetch(ctx context.Context) ([]T, error) {
	entry, ok, err := c.cache.Get(ctx, c.key())
	if err != nil {
		c.log.Warn().Err(err).Str("source", c.Name()).Msg("cache read failed")
	}
	if ok {
		var items []T
		if err := json.Unmarshal(entry.Data, &items); err == nil {
			c.log.Debug().Str("source", c.Name()).Dur("age", entry.Age(time.Now())).Msg("cache hit")
			return items, nil
		}
		c.log.Warn().Str("source", c.Name()).Msg("discarding undecodable cache entry")
	}

	items, err := c.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(items); err == nil {
		if err := c.cache.Set(ctx, c.key(), b, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("source", c.Name()).Msg("cache write failed")
		}
	}
	return items, nil
}

// Invalidate drops the cached result so the next Fetch hits the network.
func (c *Cached[T]) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.key())
}
