package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

// headlineSelector matches headline elements on the news page; each is
// expected to sit inside the anchor that links to the story.
const headlineSelector = "h3"

// NewsFetcher scrapes headlines from a news index page.
type NewsFetcher struct {
	client *Client
	name   string
	url    string
}

func NewNewsFetcher(c *Client, name, pageURL string) *NewsFetcher {
	return &NewsFetcher{client: c, name: name, url: pageURL}
}

func (f *NewsFetcher) Name() string { return f.name }

func (f *NewsFetcher) Fetch(ctx context.Context) ([]signal.NewsItem, error) {
	body, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.name, err)
	}
	return parseNews(body, f.url, f.name)
}

func parseNews(body []byte, pageURL, sourceName string) ([]signal.NewsItem, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing news page: %w", err)
	}

	var items []signal.NewsItem
	doc.Find(headlineSelector).Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		item := signal.NewsItem{Headline: text, Source: sourceName}
		if href, ok := s.Closest("a").Attr("href"); ok {
			item.Link = resolveLink(base, href)
		}
		items = append(items, item)
	})
	return items, nil
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
