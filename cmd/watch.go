package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/metrics"
)

var (
	flagInterval    string
	flagMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan repeatedly until interrupted",
	Long: `Run a scan every --interval (default: refresh_interval from config, 5m)
until interrupted. With --metrics-addr, Prometheus metrics are served at /metrics.`,
	RunE: runWatch,
}

func init() {
	addScanFlags(watchCmd)
	watchCmd.Flags().StringVar(&flagInterval, "interval", "", "time between scans (e.g., 5m, 1h)")
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g., :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	interval := cfg.RefreshDuration()
	if flagInterval != "" {
		d, err := config.ParseDuration(flagInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --interval value %q", flagInterval)
		}
		interval = d
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := newApp(ctx, cfg, appLog, appOptions{
		memoryCache: true,
		analyze:     flagAnalyze,
		alert:       flagAlert,
		metrics:     m,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if flagMetricsAddr != "" {
		srv := serveMetrics(flagMetricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	appLog.Info().Dur("interval", interval).Msg("watching")
	opts := scanOptions{analyze: flagAnalyze, alert: flagAlert, refresh: flagRefresh}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		out, err := a.scan(ctx, opts)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			appLog.Error().Err(err).Msg("scan failed")
		default:
			if err := a.print(cmd.OutOrStdout(), out); err != nil {
				return err
			}
		}
		opts.refresh = false

		select {
		case <-ctx.Done():
			appLog.Info().Msg("stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	appLog.Info().Str("addr", addr).Msg("serving metrics at /metrics")
	return srv
}
