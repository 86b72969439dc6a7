// Package report summarizes a scan and renders it for the terminal.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/source"
)

// Summary describes one scan at a glance.
type Summary struct {
	DateLabel    string
	Total        int
	KindCounts   map[signal.Kind]int
	Tickers      []string // distinct, in first-seen order
	Confluence   []string // tickers flagged by more than one kind
	TopTickers   string
	Trending     string
	RawCounts    map[string]int
	SourceErrors []string
}

// Summarize builds a Summary from the scan's signals and fetch result.
func Summarize(signals []signal.Signal, fetched source.FetchResult, now time.Time) Summary {
	s := Summary{
		DateLabel:  now.Format("Jan 2 15:04"),
		Total:      len(signals),
		KindCounts: map[signal.Kind]int{},
		RawCounts:  map[string]int{},
	}
	for k, v := range fetched.Counts {
		s.RawCounts[k] = v
	}
	for _, e := range fetched.Errors {
		s.SourceErrors = append(s.SourceErrors, e.Error())
	}

	kindsByTicker := map[string]map[signal.Kind]bool{}
	for _, sig := range signals {
		s.KindCounts[sig.Kind]++
		kinds, ok := kindsByTicker[sig.Ticker]
		if !ok {
			kinds = map[signal.Kind]bool{}
			kindsByTicker[sig.Ticker] = kinds
			s.Tickers = append(s.Tickers, sig.Ticker)
		}
		kinds[sig.Kind] = true
	}
	for _, t := range s.Tickers {
		if len(kindsByTicker[t]) > 1 {
			s.Confluence = append(s.Confluence, t)
		}
	}

	s.TopTickers = topTickers(signals)
	s.Trending = trending(fetched.Input.News)
	return s
}

// topTickers lists the three tickers with the most signals.
func topTickers(signals []signal.Signal) string {
	counts := map[string]int{}
	var order []string
	for _, s := range signals {
		if counts[s.Ticker] == 0 {
			order = append(order, s.Ticker)
		}
		counts[s.Ticker]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	limit := 3
	if len(order) < limit {
		limit = len(order)
	}

	parts := make([]string, limit)
	for i := 0; i < limit; i++ {
		parts[i] = fmt.Sprintf("%s (%d)", order[i], counts[order[i]])
	}
	return strings.Join(parts, ", ")
}

// trending extracts the top keywords of deal headlines, weighting each term
// against how common it is across all fetched headlines.
func trending(news []signal.NewsItem) string {
	df := map[string]int{}
	tf := map[string]int{}
	for _, n := range news {
		seen := map[string]bool{}
		for _, w := range tokenize(n.Headline) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}
	for _, n := range news {
		for _, w := range tokenize(n.Headline) {
			tf[w]++
		}
	}

	totalDocs := len(news)
	if totalDocs == 0 {
		return ""
	}

	type scored struct {
		term  string
		score float64
	}
	var terms []scored
	for term, freq := range tf {
		if freq < 2 {
			continue
		}
		idf := math.Log(1 + float64(totalDocs)/float64(df[term]))
		terms = append(terms, scored{term, float64(freq) * idf})
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].score != terms[j].score {
			return terms[i].score > terms[j].score
		}
		return terms[i].term < terms[j].term
	})

	limit := 3
	if len(terms) < limit {
		limit = len(terms)
	}
	parts := make([]string, limit)
	for i := 0; i < limit; i++ {
		parts[i] = terms[i].term
	}
	return strings.Join(parts, ", ")
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "it": true, "its": true,
	"this": true, "that": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "have": true, "has": true, "had": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "not": true,
	"says": true, "said": true, "after": true, "before": true, "over": true, "into": true,
	"about": true, "than": true, "more": true, "most": true, "just": true, "what": true,
	"stock": true, "stocks": true, "shares": true, "deal": true, "company": true,
	"inc": true, "corp": true, "report": true, "reports": true, "amid": true,
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 4 {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
