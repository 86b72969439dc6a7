package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/n0ne0ther/ma-scanner/internal/classify"
)

// DefaultNewsSource is used when a news item does not name its origin.
const DefaultNewsSource = "Yahoo Finance"

// Reasons logged when a raw item is dropped.
const (
	dropNoTicker     = "no_ticker"
	dropNoIdentifier = "no_identifier"
	dropUnresolved   = "unresolved_identifier"
	dropMalformedRow = "malformed_row"
)

// Resolver maps a filer identifier (CIK) to a ticker. An empty ticker or a
// non-nil error both mean the identifier could not be resolved.
type Resolver interface {
	Resolve(ctx context.Context, cik string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, cik string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, cik string) (string, error) {
	return f(ctx, cik)
}

// Extractor turns raw scraped collections into signals. It holds no state
// between calls and may be shared if its Resolver is reentrant.
type Extractor struct {
	resolver Resolver
	log      zerolog.Logger
}

// NewExtractor returns an Extractor that resolves CIKs through r.
func NewExtractor(r Resolver, log zerolog.Logger) *Extractor {
	return &Extractor{
		resolver: r,
		log:      log.With().Str("component", "extractor").Logger(),
	}
}

// Extract runs news matching, filing classification and insider clustering
// over in, in that order. Any item that cannot be processed is skipped;
// Extract itself never fails.
func (e *Extractor) Extract(ctx context.Context, in Input) []Signal {
	var out []Signal
	out = append(out, e.news(in.News)...)
	out = append(out, e.filings(ctx, in.Filings)...)
	out = append(out, e.insiders(in.Insiders)...)
	return out
}

func (e *Extractor) news(items []NewsItem) []Signal {
	var out []Signal
	for i, item := range items {
		if !classify.IsDealHeadline(item.Headline) {
			continue
		}
		ticker, ok := classify.FirstTicker(item.Headline)
		if !ok {
			e.dropped(dropNoTicker, "news", i, item.Headline)
			continue
		}
		source := item.Source
		if source == "" {
			source = DefaultNewsSource
		}
		out = append(out, Signal{
			Kind:   NewsMention,
			Ticker: ticker,
			Title:  item.Headline,
			Link:   item.Link,
			Source: source,
		})
	}
	return out
}

func (e *Extractor) filings(ctx context.Context, entries []FilingEntry) []Signal {
	var out []Signal
	for i, entry := range entries {
		cik, ok := classify.FilerID(entry.Link)
		if !ok {
			e.dropped(dropNoIdentifier, "filing", i, entry.Title)
			continue
		}
		ticker, err := e.resolve(ctx, cik)
		if err != nil || ticker == "" {
			e.log.Debug().Err(err).Str("reason", dropUnresolved).Str("cik", cik).
				Int("index", i).Msg("dropping filing")
			continue
		}
		out = append(out, classifyFiling(entry, cik, ticker)...)
	}
	return out
}

// classifyFiling yields zero, one or two signals for a resolved entry. The
// 8-K and 13D/G checks are independent.
func classifyFiling(entry FilingEntry, cik, ticker string) []Signal {
	var out []Signal
	text := filingText(entry)
	if classify.IsDealFiling(entry.Title) {
		out = append(out, Signal{
			Kind:       RegulatoryFiling8K,
			Ticker:     ticker,
			Title:      entry.Title,
			Link:       entry.Link,
			CIK:        cik,
			FilingText: text,
		})
	}
	if classify.IsOwnershipFiling(entry.Title) {
		if stake, ok := classify.StakePercent(entry.Title); ok && classify.IsMaterialStake(stake) {
			out = append(out, Signal{
				Kind:       RegulatoryFiling13DG,
				Ticker:     ticker,
				Title:      entry.Title,
				Link:       entry.Link,
				CIK:        cik,
				Stake:      stake,
				FilingText: text,
			})
		}
	}
	return out
}

func filingText(entry FilingEntry) string {
	return fmt.Sprintf("Title: %s\nSummary: %s", entry.Title, entry.Summary)
}

// resolve shields the batch from a misbehaving resolver.
func (e *Extractor) resolve(ctx context.Context, cik string) (ticker string, err error) {
	if e.resolver == nil {
		return "", fmt.Errorf("no resolver configured")
	}
	defer func() {
		if r := recover(); r != nil {
			ticker, err = "", fmt.Errorf("resolver panic: %v", r)
		}
	}()
	ticker, err = e.resolver.Resolve(ctx, cik)
	return strings.TrimSpace(ticker), err
}

func (e *Extractor) insiders(rows []InsiderRow) []Signal {
	var (
		order  []string
		groups = map[string][]InsiderBuy{}
	)
	for i, row := range rows {
		if row.Transaction != classify.BuyTransaction {
			continue
		}
		value, err := classify.ParseDollars(row.Value)
		if err != nil {
			e.log.Debug().Err(err).Str("reason", dropMalformedRow).Int("index", i).
				Str("ticker", row.Ticker).Msg("dropping insider row")
			continue
		}
		if !classify.IsLargeBuy(value) {
			continue
		}
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			e.dropped(dropMalformedRow, "insider", i, row.Owner)
			continue
		}
		if _, seen := groups[ticker]; !seen {
			order = append(order, ticker)
		}
		groups[ticker] = append(groups[ticker], InsiderBuy{Owner: strings.TrimSpace(row.Owner), Value: value})
	}

	var out []Signal
	for _, ticker := range order {
		buys := groups[ticker]
		if len(buys) < 2 {
			continue
		}
		out = append(out, Signal{
			Kind:     InsiderCluster,
			Ticker:   ticker,
			Insiders: buys,
		})
	}
	return out
}

func (e *Extractor) dropped(reason, stream string, index int, text string) {
	e.log.Debug().Str("reason", reason).Str("stream", stream).Int("index", index).
		Str("text", text).Msg("dropping item")
}
