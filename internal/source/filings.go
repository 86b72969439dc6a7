package source

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"

	"github.com/mmcdole/gofeed"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

// FilingFetcher reads the EDGAR current-filings Atom feed.
type FilingFetcher struct {
	client *Client
	parser *gofeed.Parser
	name   string
	url    string
	max    int
}

func NewFilingFetcher(c *Client, name, feedURL string, maxEntries int) *FilingFetcher {
	return &FilingFetcher{client: c, parser: gofeed.NewParser(), name: name, url: feedURL, max: maxEntries}
}

func (f *FilingFetcher) Name() string { return f.name }

func (f *FilingFetcher) Fetch(ctx context.Context) ([]signal.FilingEntry, error) {
	// Fetched through Client rather than ParseURL so the SEC sees our agent.
	body, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.name, err)
	}
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.name, err)
	}

	items := feed.Items
	if f.max > 0 && len(items) > f.max {
		items = items[:f.max]
	}
	entries := make([]signal.FilingEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, signal.FilingEntry{
			Title:   collapseSpace(item.Title),
			Link:    item.Link,
			Summary: collapseSpace(stripHTML(item.Description)),
		})
	}
	return entries, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTML drops tags and decodes entities such as &nbsp; and &amp;.
func stripHTML(s string) string {
	return html.UnescapeString(htmlTagRe.ReplaceAllString(s, " "))
}
