// Package export writes signals as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

var header = []string{"kind", "ticker", "title", "link", "source", "cik", "stake", "insiders"}

// WriteCSV writes one row per signal after a header row.
func WriteCSV(w io.Writer, signals []signal.Signal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, s := range signals {
		if err := cw.Write(record(s)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(s signal.Signal) []string {
	stake := ""
	if s.Kind == signal.RegulatoryFiling13DG {
		stake = strconv.FormatFloat(s.Stake, 'f', -1, 64)
	}
	return []string{
		string(s.Kind),
		s.Ticker,
		s.Title,
		s.Link,
		s.Source,
		s.CIK,
		stake,
		insiders(s.Insiders),
	}
}

// insiders renders "owner ($value); owner ($value)".
func insiders(buys []signal.InsiderBuy) string {
	parts := make([]string, len(buys))
	for i, b := range buys {
		parts[i] = fmt.Sprintf("%s ($%s)", b.Owner, strconv.FormatInt(int64(math.Round(b.Value)), 10))
	}
	return strings.Join(parts, "; ")
}
