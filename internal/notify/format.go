package notify

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/n0ne0ther/ma-scanner/internal/ai"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

// FormatAlert renders a signal as Telegram HTML. analysis may be nil.
func FormatAlert(s signal.Signal, analysis *ai.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> %s\n", esc(string(s.Kind)), esc(s.Ticker))

	if s.Title != "" {
		b.WriteString(esc(s.Title))
		b.WriteByte('\n')
	}

	switch s.Kind {
	case signal.NewsMention:
		if s.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", esc(s.Source))
		}
	case signal.RegulatoryFiling8K:
		if s.CIK != "" {
			fmt.Fprintf(&b, "CIK: %s\n", esc(s.CIK))
		}
	case signal.RegulatoryFiling13DG:
		fmt.Fprintf(&b, "Stake: %.2f%%\n", s.Stake)
	case signal.InsiderCluster:
		fmt.Fprintf(&b, "%d insiders, %s total\n", len(s.Insiders), Dollars(s.TotalInsiderValue()))
		for _, in := range s.Insiders {
			fmt.Fprintf(&b, "• %s (%s)\n", esc(in.Owner), Dollars(in.Value))
		}
	}

	if s.Link != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">Open</a>\n", esc(s.Link))
	}

	if analysis != nil && len(analysis.Bullets) > 0 {
		b.WriteString("\n<i>Analysis</i>\n")
		for _, line := range analysis.Bullets {
			fmt.Fprintf(&b, "• %s\n", esc(line))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Dollars formats v as whole dollars with thousands separators, e.g. "$600,000".
func Dollars(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func esc(s string) string {
	return html.EscapeString(s)
}
