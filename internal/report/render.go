package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/n0ne0ther/ma-scanner/internal/ai"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	colorGreen   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#C27C0E", Dark: "#E5C07B"}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	tickerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	linkStyle   = lipgloss.NewStyle().Foreground(colorDim).Italic(true)

	kindStyles = map[signal.Kind]lipgloss.Style{
		signal.NewsMention:          lipgloss.NewStyle().Foreground(colorGreen),
		signal.RegulatoryFiling8K:   lipgloss.NewStyle().Foreground(colorPrimary),
		signal.RegulatoryFiling13DG: lipgloss.NewStyle().Foreground(colorPrimary),
		signal.InsiderCluster:       lipgloss.NewStyle().Foreground(colorAccent),
	}
)

// Render writes the summary header followed by one numbered line per signal.
// analyses is keyed by Signal.Key and may be nil.
func Render(w io.Writer, sum Summary, signals []signal.Signal, analyses map[string]ai.Analysis) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("M&A scan · %s · %d signal(s)", sum.DateLabel, sum.Total)))
	b.WriteByte('\n')

	var kinds []string
	for _, k := range signal.AllKinds() {
		if n := sum.KindCounts[k]; n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s %d", k, n))
		}
	}
	if len(kinds) > 0 {
		b.WriteString(dimStyle.Render(strings.Join(kinds, " · ")))
		b.WriteByte('\n')
	}
	if raw := formatCounts(sum.RawCounts); raw != "" {
		b.WriteString(dimStyle.Render("scanned " + raw))
		b.WriteByte('\n')
	}
	if len(sum.Confluence) > 0 {
		b.WriteString(tickerStyle.Render("confluence: " + strings.Join(sum.Confluence, ", ")))
		b.WriteByte('\n')
	}
	if sum.Trending != "" {
		b.WriteString(dimStyle.Render("trending: " + sum.Trending))
		b.WriteByte('\n')
	}
	for _, e := range sum.SourceErrors {
		b.WriteString(warnStyle.Render("! " + e))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if len(signals) == 0 {
		b.WriteString(dimStyle.Render("No signals."))
		b.WriteByte('\n')
	}

	for i, s := range signals {
		style, ok := kindStyles[s.Kind]
		if !ok {
			style = dimStyle
		}
		fmt.Fprintf(&b, "%3d. %s %s %s\n", i+1, style.Render(fmt.Sprintf("[%s]", s.Kind)), tickerStyle.Render(s.Ticker), Detail(s))
		if s.Link != "" {
			b.WriteString("     " + linkStyle.Render(s.Link) + "\n")
		}
		if a, ok := analyses[s.Key()]; ok {
			for _, line := range a.Bullets {
				b.WriteString("     - " + line + "\n")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Detail is the kind-specific one-line description of a signal.
func Detail(s signal.Signal) string {
	switch s.Kind {
	case signal.RegulatoryFiling13DG:
		return fmt.Sprintf("%s (%.2f%% stake)", s.Title, s.Stake)
	case signal.InsiderCluster:
		owners := make([]string, 0, len(s.Insiders))
		for _, in := range s.Insiders {
			owners = append(owners, fmt.Sprintf("%s %s", in.Owner, dollars(in.Value)))
		}
		return fmt.Sprintf("%d insider buys, %s total: %s", len(s.Insiders), dollars(s.TotalInsiderValue()), strings.Join(owners, "; "))
	default:
		return s.Title
	}
}

func dollars(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
