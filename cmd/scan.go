package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/n0ne0ther/ma-scanner/internal/ai"
	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/notify"
	"github.com/n0ne0ther/ma-scanner/internal/report"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/source"
	"github.com/n0ne0ther/ma-scanner/internal/store"
)

var (
	flagAnalyze bool
	flagAlert   bool
	flagRefresh bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch sources once and print M&A signals",
	Long: `Fetch the news page, the SEC current-filings feed and the insider table,
extract M&A signals and record the scan in the local history.

Fetched sources are cached for cache_ttl (default 5m); use --refresh to bypass.`,
	RunE: runScan,
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagAnalyze, "analyze", false, "analyze filing signals with Grok (needs XAI_API_KEY)")
	cmd.Flags().BoolVar(&flagAlert, "alert", false, "send new signals to Telegram (needs TELEGRAM_TOKEN and TELEGRAM_CHAT_ID)")
	cmd.Flags().BoolVar(&flagRefresh, "refresh", false, "ignore cached source data")
}

func init() {
	addScanFlags(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appLog, appOptions{analyze: flagAnalyze, alert: flagAlert})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.scan(ctx, scanOptions{analyze: flagAnalyze, alert: flagAlert, refresh: flagRefresh})
	if err != nil {
		return err
	}
	return a.print(cmd.OutOrStdout(), out)
}

type scanOptions struct {
	analyze bool
	alert   bool
	refresh bool
}

type scanOutcome struct {
	scan     store.Scan
	signals  []signal.Signal
	fetched  source.FetchResult
	analyses map[string]ai.Analysis
	alerted  int
}

// scan runs one fetch, extract, analyze, alert and record cycle. Only a
// failure to record the scan is fatal; everything else is logged.
func (a *app) scan(ctx context.Context, opts scanOptions) (*scanOutcome, error) {
	started := time.Now()

	if opts.refresh {
		for _, c := range a.cached {
			if err := c.Invalidate(ctx); err != nil {
				a.log.Warn().Err(err).Msg("invalidating cache")
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	fetched := source.FetchAll(fetchCtx, a.fetchers)
	signals := a.extractor.Extract(fetchCtx, fetched.Input)
	cancel()

	var failed []string
	var errStrings []string
	for _, e := range fetched.Errors {
		a.log.Warn().Err(e.Err).Str("source", e.Source).Str("stream", e.Stream).Msg("source unavailable")
		failed = append(failed, e.Source)
		errStrings = append(errStrings, e.Error())
	}
	a.log.Info().
		Int("news", fetched.Counts[source.StreamNews]).
		Int("filings", fetched.Counts[source.StreamFilings]).
		Int("insiders", fetched.Counts[source.StreamInsiders]).
		Int("signals", len(signals)).
		Msg("scan complete")

	out := &scanOutcome{signals: signals, fetched: fetched, analyses: map[string]ai.Analysis{}}

	if opts.analyze && a.analyzer != nil {
		a.analyze(ctx, out)
	}
	if opts.alert && a.notifier != nil {
		out.alerted = a.alert(ctx, out)
	}

	scan, err := a.db.RecordScan(ctx, started, signals, fetched.Counts, errStrings)
	if err != nil {
		return nil, fmt.Errorf("recording scan: %w", err)
	}
	out.scan = scan

	if _, err := a.db.Prune(ctx, a.cfg.RetentionDuration()); err != nil {
		a.log.Warn().Err(err).Msg("auto-prune failed")
	}
	if a.metrics != nil {
		a.metrics.ObserveScan(signals, failed)
	}
	return out, nil
}

func (a *app) analyze(ctx context.Context, out *scanOutcome) {
	month := ai.Month(time.Now())
	p, c, err := a.db.TokenUsage(ctx, month)
	if err != nil {
		a.log.Warn().Err(err).Msg("reading token usage")
	}
	a.usage.Seed(p, c)

	for _, s := range out.signals {
		if s.FilingText == "" {
			continue
		}
		res, err := a.analyzer.Analyze(ctx, s)
		switch {
		case errors.Is(err, ai.ErrBudgetExhausted):
			a.log.Warn().Int64("limit", a.usage.Limit()).Msg("monthly token budget exhausted; skipping analysis")
			return
		case errors.Is(err, ai.ErrNoFilingText):
			continue
		case err != nil:
			a.log.Warn().Err(err).Str("ticker", s.Ticker).Msg("analysis failed")
			continue
		}
		out.analyses[s.Key()] = res
		if res.Cached {
			continue
		}
		if err := a.db.AddTokenUsage(ctx, month, res.PromptTokens, res.CompletionTokens); err != nil {
			a.log.Warn().Err(err).Msg("saving token usage")
		}
		if a.metrics != nil {
			a.metrics.ObserveTokens(res.PromptTokens, res.CompletionTokens)
		}
	}
}

// alert delivers signals not yet in the alert ledger and returns how many
// were sent.
func (a *app) alert(ctx context.Context, out *scanOutcome) int {
	sent := 0
	for _, s := range out.signals {
		key := s.Key()
		seen, err := a.db.WasAlerted(ctx, key)
		if err != nil {
			a.log.Warn().Err(err).Msg("checking alert ledger")
			continue
		}
		if seen {
			continue
		}

		var analysis *ai.Analysis
		if res, ok := out.analyses[key]; ok {
			analysis = &res
		}
		if err := a.notifier.Notify(ctx, notify.FormatAlert(s, analysis)); err != nil {
			if errors.Is(err, notify.ErrNotConfigured) {
				a.log.Warn().Msg("telegram not configured; skipping alerts")
				return sent
			}
			a.log.Warn().Err(err).Str("ticker", s.Ticker).Msg("alert failed")
			continue
		}
		if err := a.db.MarkAlerted(ctx, key, s.Ticker, time.Now()); err != nil {
			a.log.Warn().Err(err).Msg("recording alert")
		}
		sent++
		if a.metrics != nil {
			a.metrics.AlertsSent.Inc()
		}
	}
	return sent
}

func (a *app) print(w io.Writer, out *scanOutcome) error {
	sum := report.Summarize(out.signals, out.fetched, out.scan.StartedAt.Local())
	if err := report.Render(w, sum, out.signals, out.analyses); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nscan %s recorded", shortID(out.scan.ID))
	if out.alerted > 0 {
		fmt.Fprintf(w, ", %d alert(s) sent", out.alerted)
	}
	fmt.Fprintln(w)

	if a.usage != nil {
		remaining := "unlimited"
		if r := a.usage.Remaining(); r >= 0 {
			remaining = humanize.Comma(r)
		}
		fmt.Fprintf(w, "AI: %s tokens this month ($%.4f), %s remaining\n",
			humanize.Comma(a.usage.Total()), a.usage.Cost(), remaining)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
