package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/n0ne0ther/ma-scanner/internal/browser"
	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/export"
	"github.com/n0ne0ther/ma-scanner/internal/report"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/source"
	"github.com/n0ne0ther/ma-scanner/internal/store"
)

var (
	flagHistoryLimit int
	flagScanID       string
	flagOutput       string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded scans, or show one with --scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(config.HistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		if flagScanID != "" {
			return showScan(cmd.Context(), cmd.OutOrStdout(), db, flagScanID)
		}
		return listScans(cmd.Context(), cmd.OutOrStdout(), db, flagHistoryLimit)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the signals of a scan as CSV",
	Long:  "Write the signals of the latest scan (or --scan ID) as CSV to stdout or -o FILE.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(config.HistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		_, signals, err := loadScan(cmd.Context(), db, flagScanID)
		if err != nil {
			return err
		}

		if flagOutput == "" || flagOutput == "-" {
			if err := export.WriteCSV(cmd.OutOrStdout(), signals); err != nil {
				return fmt.Errorf("writing csv: %w", err)
			}
			return nil
		}

		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", flagOutput, err)
		}
		if err := writeCSVFile(f, signals); err != nil {
			return fmt.Errorf("writing %s: %w", flagOutput, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d signal(s) to %s.\n", len(signals), flagOutput)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open N",
	Short: "Open the link of the Nth signal of the latest scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid signal number %q", args[0])
		}

		db, err := store.Open(config.HistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		_, signals, err := loadScan(cmd.Context(), db, flagScanID)
		if err != nil {
			return err
		}
		s, err := pickSignal(signals, n)
		if err != nil {
			return err
		}
		if s.Link == "" {
			return fmt.Errorf("signal %d (%s %s) has no link", n, s.Kind, s.Ticker)
		}
		return browser.Open(s.Link)
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of scans to list")
	historyCmd.Flags().StringVar(&flagScanID, "scan", "", "show the signals of this scan (id or prefix)")
	exportCmd.Flags().StringVar(&flagScanID, "scan", "", "scan id or prefix (default: latest)")
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default: stdout)")
	openCmd.Flags().StringVar(&flagScanID, "scan", "", "scan id or prefix (default: latest)")
}

func listScans(ctx context.Context, w io.Writer, db *store.Store, limit int) error {
	scans, err := db.ListScans(ctx, limit)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans recorded yet.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "SIGNALS", "SOURCE ERRORS")
	for _, s := range scans {
		t.Row(shortID(s.ID), humanize.Time(s.StartedAt), strconv.Itoa(s.SignalCount), strconv.Itoa(len(s.SourceErrors)))
	}
	_, err = fmt.Fprintln(w, t.Render())
	return err
}

func showScan(ctx context.Context, w io.Writer, db *store.Store, id string) error {
	scan, signals, err := loadScan(ctx, db, id)
	if err != nil {
		return err
	}
	sum := report.Summarize(signals, source.FetchResult{Counts: scan.Counts}, scan.StartedAt.Local())
	sum.SourceErrors = scan.SourceErrors
	return report.Render(w, sum, signals, nil)
}

// loadScan returns the scan with id (or prefix), or the latest when id is empty.
func loadScan(ctx context.Context, db *store.Store, id string) (store.Scan, []signal.Signal, error) {
	var (
		scan store.Scan
		err  error
	)
	if id == "" {
		scan, err = db.LatestScan(ctx)
	} else {
		scan, err = db.GetScan(ctx, id)
	}
	if err != nil {
		return store.Scan{}, nil, err
	}
	signals, err := db.ScanSignals(ctx, scan.ID)
	if err != nil {
		return store.Scan{}, nil, err
	}
	return scan, signals, nil
}

// pickSignal returns the nth signal, counting from 1 as the scan output does.
func pickSignal(signals []signal.Signal, n int) (signal.Signal, error) {
	if n < 1 || n > len(signals) {
		return signal.Signal{}, fmt.Errorf("signal %d out of range (scan has %d)", n, len(signals))
	}
	return signals[n-1], nil
}

// writeCSVFile writes signals to wc and closes it, returning the close error
// when the write succeeded.
func writeCSVFile(wc io.WriteCloser, signals []signal.Signal) (err error) {
	defer func() {
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
	}()
	return export.WriteCSV(wc, signals)
}
