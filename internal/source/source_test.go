package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

const newsPage = `<html><body>
<ul>
  <li><a href="/news/msft-atvi.html"><h3 class="Mb(5px)">MSFT to acquire   ATVI</h3></a></li>
  <li><a href="https://other.example.com/x"><div><h3>Pfizer merger talk</h3></div></a></li>
  <li><h3>Orphan headline</h3></li>
  <li><a href="/empty"><h3>   </h3></a></li>
</ul>
</body></html>`

const insiderPage = `<html><body>
<table class="body-table">
  <tr><td>Ticker</td><td>Owner</td></tr>
  <tr><td>0</td><td>ACME</td><td>Jane Doe</td><td>CEO</td><td>Nov 01</td><td>Buy</td><td>10.00</td><td>60,000</td><td>$600,000</td><td>100</td></tr>
  <tr><td>0</td><td>ACME</td><td>John Roe</td><td>CFO</td><td>Nov 01</td><td>Sale</td><td>10.00</td><td>1</td><td>$10</td><td>1</td></tr>
  <tr><td>short</td><td>row</td></tr>
</table>
</body></html>`

const atomFeed = `<?xml version="1.0" encoding="UTF-8" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Latest Filings</title>
<entry>
  <title>8-K - Acme Corp (0000320193) (Filer)</title>
  <link rel="alternate" type="text/html" href="https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&amp;CIK=0000320193"/>
  <summary type="html"> &lt;b&gt;Filed:&lt;/b&gt; 2025-01-02 Item 2.01 acquisition</summary>
  <updated>2025-01-02T16:00:00-05:00</updated>
  <id>urn:tag:sec.gov,2008:accession-number=1</id>
</entry>
<entry>
  <title>SC 13D - Widget Inc (0000000042) (Subject)</title>
  <link rel="alternate" type="text/html" href="https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&amp;CIK=0000000042"/>
  <updated>2025-01-02T15:00:00-05:00</updated>
  <id>urn:tag:sec.gov,2008:accession-number=2</id>
</entry>
<entry>
  <title>4 - Third Co</title>
  <link rel="alternate" type="text/html" href="https://www.sec.gov/x"/>
  <updated>2025-01-02T14:00:00-05:00</updated>
  <id>urn:tag:sec.gov,2008:accession-number=3</id>
</entry>
</feed>`

const tickerTable = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 42, "ticker": "wdgt", "title": "Widget Inc"},
  "2": {"cik_str": "77", "ticker": "STR", "title": "String CIK"}
}`

func testClient() *Client {
	return NewClient("ma-scanner-test", WithRateLimit(1000, 100))
}

func serve(t *testing.T, contentType, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "ma-scanner-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestParseNews(t *testing.T) {
	items, err := parseNews([]byte(newsPage), "https://finance.yahoo.com/news/", "Yahoo Finance")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "MSFT to acquire ATVI", items[0].Headline)
	assert.Equal(t, "https://finance.yahoo.com/news/msft-atvi.html", items[0].Link)
	assert.Equal(t, "Yahoo Finance", items[0].Source)

	assert.Equal(t, "https://other.example.com/x", items[1].Link)
	assert.Equal(t, "Orphan headline", items[2].Headline)
	assert.Empty(t, items[2].Link)
}

func TestNewsFetcher(t *testing.T) {
	srv, _ := serve(t, "text/html", newsPage)
	f := NewNewsFetcher(testClient(), "Yahoo Finance", srv.URL+"/news/")

	items, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, srv.URL+"/news/msft-atvi.html", items[0].Link)
}

func TestParseInsiders(t *testing.T) {
	rows, err := parseInsiders([]byte(insiderPage))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, signal.InsiderRow{Ticker: "ACME", Owner: "Jane Doe", Transaction: "Buy", Value: "$600,000"}, rows[0])
	assert.Equal(t, "Sale", rows[1].Transaction)
}

func TestFilingFetcher(t *testing.T) {
	srv, _ := serve(t, "application/atom+xml", atomFeed)
	f := NewFilingFetcher(testClient(), "SEC EDGAR", srv.URL, 2)

	entries, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2, "capped at max entries")

	assert.Equal(t, "8-K - Acme Corp (0000320193) (Filer)", entries[0].Title)
	assert.Contains(t, entries[0].Link, "CIK=0000320193")
	assert.Equal(t, "Filed: 2025-01-02 Item 2.01 acquisition", entries[0].Summary)
	assert.Empty(t, entries[1].Summary)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTickerResolver(t *testing.T) {
	srv, hits := serve(t, "application/json", tickerTable)
	r := NewTickerResolver(testClient(), srv.URL, time.Hour)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "0000320193")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got)

	got, err = r.Resolve(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "WDGT", got)

	got, err = r.Resolve(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, "STR", got)

	_, err = r.Resolve(ctx, "999")
	assert.ErrorIs(t, err, ErrUnknownCIK)

	_, err = r.Resolve(ctx, "abc")
	assert.ErrorIs(t, err, ErrUnknownCIK)

	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "table downloaded once")
	assert.Equal(t, 3, len(r.byCIK))
}

func TestTickerResolverReloadsAfterTTL(t *testing.T) {
	srv, hits := serve(t, "application/json", tickerTable)
	r := NewTickerResolver(testClient(), srv.URL, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestTickerResolverDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewTickerResolver(testClient(), srv.URL, time.Hour)
	_, err := r.Resolve(context.Background(), "42")
	assert.Error(t, err)
}

func TestParseTickerTableKeepsFirstShareClass(t *testing.T) {
	// Row "10" sorts before "2" as a string; listing order is numeric.
	body := []byte(`{
  "10": {"cik_str": 1652044, "ticker": "GOOG", "title": "Alphabet Inc."},
  "2": {"cik_str": 1652044, "ticker": "GOOGL", "title": "Alphabet Inc."},
  "7": {"cik_str": 1067983, "ticker": "BRK-B", "title": "Berkshire Hathaway"},
  "11": {"cik_str": 1067983, "ticker": "BRK-A", "title": "Berkshire Hathaway"}
}`)
	for i := 0; i < 50; i++ {
		table, err := parseTickerTable(body)
		require.NoError(t, err)
		require.Equal(t, "GOOGL", table["1652044"])
		require.Equal(t, "BRK-B", table["1067983"])
	}
}

func TestStripHTMLDecodesEntities(t *testing.T) {
	got := collapseSpace(stripHTML("<b>Filed:</b>&nbsp;2025-01-02<br/>R&amp;D &lt;deal&gt;"))
	assert.Equal(t, "Filed: 2025-01-02 R&D <deal>", got)
}

func TestResolverFeedsExtractor(t *testing.T) {
	srv, _ := serve(t, "application/json", tickerTable)
	r := NewTickerResolver(testClient(), srv.URL, time.Hour)
	ex := signal.NewExtractor(r, zerolog.Nop())

	got := ex.Extract(context.Background(), signal.Input{Filings: []signal.FilingEntry{
		{Title: "8-K merger agreement", Link: "https://www.sec.gov/cgi-bin/browse-edgar?CIK=0000320193"},
		{Title: "8-K merger agreement", Link: "https://www.sec.gov/cgi-bin/browse-edgar?CIK=0000000001"},
	}})
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Ticker)
}

type fakeFetcher[T any] struct {
	name  string
	items []T
	err   error
	calls int32
}

func (f *fakeFetcher[T]) Name() string { return f.name }

func (f *fakeFetcher[T]) Fetch(context.Context) ([]T, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.items, f.err
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	res := FetchAll(context.Background(), Fetchers{
		News:     &fakeFetcher[signal.NewsItem]{name: "news", items: []signal.NewsItem{{Headline: "a"}, {Headline: "b"}}},
		Filings:  &fakeFetcher[signal.FilingEntry]{name: "sec", err: errors.New("timeout")},
		Insiders: &fakeFetcher[signal.InsiderRow]{name: "finviz", items: []signal.InsiderRow{{Ticker: "X"}}},
	})

	assert.Len(t, res.Input.News, 2)
	assert.Empty(t, res.Input.Filings)
	assert.Len(t, res.Input.Insiders, 1)
	assert.Equal(t, map[string]int{StreamNews: 2, StreamInsiders: 1}, res.Counts)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, StreamFilings, res.Errors[0].Stream)
	assert.Equal(t, "sec", res.Errors[0].Source)
	assert.EqualError(t, errors.Unwrap(res.Errors[0]), "timeout")
}

func TestFetchAllSkipsDisabled(t *testing.T) {
	res := FetchAll(context.Background(), Fetchers{})
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Counts)
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	inner := &fakeFetcher[signal.NewsItem]{name: "news", items: []signal.NewsItem{{Headline: "IBM to acquire HCP"}}}
	c := NewCached[signal.NewsItem](inner, ttlcache.NewMemory(), time.Minute, zerolog.Nop())

	first, err := c.Fetch(ctx)
	require.NoError(t, err)
	second, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))

	require.NoError(t, c.Invalidate(ctx))
	_, err = c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	inner := &fakeFetcher[signal.InsiderRow]{name: "finviz", err: errors.New("down")}
	c := NewCached[signal.InsiderRow](inner, ttlcache.NewMemory(), time.Minute, zerolog.Nop())

	_, err := c.Fetch(ctx)
	assert.Error(t, err)
	_, err = c.Fetch(ctx)
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}
