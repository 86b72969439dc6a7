package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnknownCIK is returned when the ticker table has no entry for a CIK.
var ErrUnknownCIK = errors.New("unknown CIK")

type companyTicker struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// TickerResolver maps CIKs to tickers using the SEC company_tickers.json
// table. The table is downloaded on first use and again once it is older
// than ttl. It satisfies signal.Resolver.
type TickerResolver struct {
	client *Client
	url    string
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	byCIK    map[string]string
	loadedAt time.Time
}

func NewTickerResolver(c *Client, tableURL string, ttl time.Duration) *TickerResolver {
	return &TickerResolver{client: c, url: tableURL, ttl: ttl, now: time.Now}
}

// Resolve returns the ticker for cik. Leading zeros are ignored.
func (r *TickerResolver) Resolve(ctx context.Context, cik string) (string, error) {
	key := normalizeCIK(cik)
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownCIK, cik)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return "", err
	}
	t, ok := r.byCIK[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCIK, cik)
	}
	return t, nil
}

func (r *TickerResolver) ensureLoaded(ctx context.Context) error {
	if r.byCIK != nil && (r.ttl <= 0 || r.now().Sub(r.loadedAt) < r.ttl) {
		return nil
	}
	body, err := r.client.Get(ctx, r.url)
	if err != nil {
		return fmt.Errorf("fetching ticker table: %w", err)
	}
	table, err := parseTickerTable(body)
	if err != nil {
		return err
	}
	r.byCIK = table
	r.loadedAt = r.now()
	return nil
}

// parseTickerTable maps CIKs to tickers. The SEC keys rows "0", "1", ... in
// listing order; when a CIK has several share classes the first row wins.
func parseTickerTable(body []byte) (map[string]string, error) {
	var raw map[string]companyTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding ticker table: %w", err)
	}

	rows := make([]string, 0, len(raw))
	for k := range raw {
		rows = append(rows, k)
	}
	sort.Slice(rows, func(i, j int) bool { return rowLess(rows[i], rows[j]) })

	out := make(map[string]string, len(raw))
	for _, k := range rows {
		c := raw[k]
		key := normalizeCIK(c.CIK.String())
		if key == "" || c.Ticker == "" {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = strings.ToUpper(c.Ticker)
		}
	}
	return out, nil
}

// rowLess orders numeric row keys numerically and anything else after them.
func rowLess(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func normalizeCIK(cik string) string {
	n, err := strconv.ParseUint(strings.TrimSpace(cik), 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(n, 10)
}
