package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

const (
	insiderRowSelector = "table.body-table tr"
	insiderMinCells    = 10

	colTicker      = 1
	colOwner       = 2
	colTransaction = 5
	colValue       = 8
)

// InsiderFetcher scrapes the insider-trading table. Values are returned as
// the raw cell text; parsing happens during extraction.
type InsiderFetcher struct {
	client *Client
	name   string
	url    string
}

func NewInsiderFetcher(c *Client, name, pageURL string) *InsiderFetcher {
	return &InsiderFetcher{client: c, name: name, url: pageURL}
}

func (f *InsiderFetcher) Name() string { return f.name }

func (f *InsiderFetcher) Fetch(ctx context.Context) ([]signal.InsiderRow, error) {
	body, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.name, err)
	}
	return parseInsiders(body)
}

func parseInsiders(body []byte) ([]signal.InsiderRow, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing insider table: %w", err)
	}

	var rows []signal.InsiderRow
	doc.Find(insiderRowSelector).Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := tr.Find("td")
		if cells.Length() < insiderMinCells {
			return
		}
		cell := func(n int) string { return collapseSpace(cells.Eq(n).Text()) }
		rows = append(rows, signal.InsiderRow{
			Ticker:      cell(colTicker),
			Owner:       cell(colOwner),
			Transaction: cell(colTransaction),
			Value:       cell(colValue),
		})
	})
	return rows, nil
}
