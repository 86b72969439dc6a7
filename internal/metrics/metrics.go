// Package metrics exposes Prometheus counters for watch mode.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

const namespace = "ma_scanner"

// Metrics holds the scanner's collectors on a private registry.
type Metrics struct {
	Registry     *prometheus.Registry
	Scans        prometheus.Counter
	Signals      *prometheus.CounterVec
	SourceErrors *prometheus.CounterVec
	AITokens     *prometheus.CounterVec
	AlertsSent   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals extracted, by kind.",
		}, []string{"kind"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Source fetch failures, by source.",
		}, []string{"source"}),
		AITokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Language model tokens used, by type.",
		}, []string{"type"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alerts delivered.",
		}),
	}
	m.Registry.MustRegister(m.Scans, m.Signals, m.SourceErrors, m.AITokens, m.AlertsSent)
	return m
}

// ObserveScan records one finished scan.
func (m *Metrics) ObserveScan(signals []signal.Signal, failedSources []string) {
	m.Scans.Inc()
	for _, s := range signals {
		m.Signals.WithLabelValues(string(s.Kind)).Inc()
	}
	for _, name := range failedSources {
		m.SourceErrors.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ObserveTokens(prompt, completion int64) {
	m.AITokens.WithLabelValues("prompt").Add(float64(prompt))
	m.AITokens.WithLabelValues("completion").Add(float64(completion))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
