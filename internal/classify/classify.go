package classify

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Thresholds applied by the extraction pipeline.
const (
	MinStakePercent  = 5.0
	MinInsiderBuyUSD = 500_000.0
	BuyTransaction   = "Buy"
)

// dealKeywords mark a headline as M&A related. Matching is by substring on
// the lower-cased headline, so "acquires" and "acquired" both hit.
var dealKeywords = []string{"acquire", "merger", "buyout"}

// filingDealKeywords qualify an 8-K title as deal related.
var filingDealKeywords = []string{"acquisition", "merger"}

// ownershipForms are the beneficial-ownership schedules that carry a stake.
var ownershipForms = []string{"SC 13D", "SC 13G"}

var (
	// Deliberately permissive: any 1-5 letter all-caps word counts, so "CEO"
	// or "A" will surface as a ticker. No known-ticker list is consulted.
	tickerPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	cikPattern    = regexp.MustCompile(`CIK=(\d+)`)
	stakePattern  = regexp.MustCompile(`(\d+\.\d+)%`)
)

// IsDealHeadline reports whether a headline mentions an acquisition, merger
// or buyout.
func IsDealHeadline(headline string) bool {
	return containsAny(strings.ToLower(headline), dealKeywords)
}

// FirstTicker returns the first run of 1-5 uppercase ASCII letters bounded
// by word boundaries. \b is ASCII-only, so "ÉABC" yields "ABC".
func FirstTicker(headline string) (string, bool) {
	t := tickerPattern.FindString(headline)
	return t, t != ""
}

// FilerID extracts the CIK from a filing link such as
// ".../browse-edgar?action=getcompany&CIK=0000320193".
func FilerID(link string) (string, bool) {
	m := cikPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsDealFiling reports whether a filing title is an 8-K mentioning an
// acquisition or merger.
func IsDealFiling(title string) bool {
	if !strings.Contains(strings.ToUpper(title), "8-K") {
		return false
	}
	return containsAny(strings.ToLower(title), filingDealKeywords)
}

// IsOwnershipFiling reports whether a filing title is a Schedule 13D or 13G.
func IsOwnershipFiling(title string) bool {
	return containsAny(strings.ToUpper(title), ownershipForms)
}

// StakePercent returns the first "<digits>.<digits>%" value in a title.
func StakePercent(title string) (float64, bool) {
	m := stakePattern.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsMaterialStake reports whether a stake crosses the 5% disclosure line.
func IsMaterialStake(pct float64) bool {
	return pct >= MinStakePercent
}

// ParseDollars parses an insider-table value such as "$1,250,000".
func ParseDollars(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing value %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", raw)
	}
	return v, nil
}

// IsLargeBuy reports whether a purchase is big enough to join a cluster.
func IsLargeBuy(value float64) bool {
	return value >= MinInsiderBuyUSD
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
