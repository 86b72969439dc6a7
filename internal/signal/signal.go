package signal

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Kind identifies what produced a signal.
type Kind string

const (
	NewsMention          Kind = "M&A News"
	RegulatoryFiling8K   Kind = "SEC 8-K"
	RegulatoryFiling13DG Kind = "13D/G"
	InsiderCluster       Kind = "Insider Cluster"
)

// AllKinds returns every kind in emission order.
func AllKinds() []Kind {
	return []Kind{NewsMention, RegulatoryFiling8K, RegulatoryFiling13DG, InsiderCluster}
}

// ParseKind maps a stored kind label back to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds() {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}

// InsiderBuy is one qualifying insider purchase inside a cluster.
type InsiderBuy struct {
	Owner string  `json:"owner"`
	Value float64 `json:"value"`
}

// Signal is one detected M&A-relevant event. Signals are passed by value and
// never modified after emission.
type Signal struct {
	Kind   Kind   `json:"kind"`
	Ticker string `json:"ticker"`
	Title  string `json:"title,omitempty"`
	Link   string `json:"link,omitempty"`

	// NewsMention
	Source string `json:"source,omitempty"`

	// RegulatoryFiling8K / RegulatoryFiling13DG
	CIK        string  `json:"cik,omitempty"`
	Stake      float64 `json:"stake,omitempty"`
	FilingText string  `json:"filing_text,omitempty"`

	// InsiderCluster
	Insiders []InsiderBuy `json:"insiders,omitempty"`
}

// TotalInsiderValue sums the dollar value of a cluster.
func (s Signal) TotalInsiderValue() float64 {
	var total float64
	for _, b := range s.Insiders {
		total += b.Value
	}
	return total
}

// Key is a stable fingerprint used to recognise the same event across scans.
func (s Signal) Key() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	b.WriteByte('|')
	b.WriteString(s.Ticker)
	b.WriteByte('|')
	if s.Kind == InsiderCluster {
		for _, ib := range s.Insiders {
			fmt.Fprintf(&b, "%s=%.0f;", ib.Owner, ib.Value)
		}
	} else {
		b.WriteString(s.Title)
		b.WriteByte('|')
		b.WriteString(s.Link)
	}
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h[:16])
}

// Validate checks the invariants every emitted signal satisfies.
func (s Signal) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("signal %s: ticker is required", s.Kind)
	}
	switch s.Kind {
	case NewsMention, RegulatoryFiling8K, RegulatoryFiling13DG:
	case InsiderCluster:
		if len(s.Insiders) < 2 {
			return fmt.Errorf("insider cluster %s: need at least 2 buys, got %d", s.Ticker, len(s.Insiders))
		}
	default:
		return fmt.Errorf("unknown signal kind %q", s.Kind)
	}
	return nil
}

// NewsItem is one scraped headline.
type NewsItem struct {
	Headline string `json:"headline"`
	Link     string `json:"link,omitempty"`
	Source   string `json:"source,omitempty"`
}

// FilingEntry is one item of the regulatory filing feed.
type FilingEntry struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary,omitempty"`
}

// InsiderRow is one row of the insider-trading table, still as text.
type InsiderRow struct {
	Ticker      string `json:"ticker"`
	Owner       string `json:"owner"`
	Transaction string `json:"transaction"`
	Value       string `json:"value"`
}

// Input bundles the raw collections of one scan.
type Input struct {
	News     []NewsItem
	Filings  []FilingEntry
	Insiders []InsiderRow
}
