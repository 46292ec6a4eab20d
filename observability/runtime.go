package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type runtimeMetrics struct {
	transactions *prometheus.CounterVec
	instructions *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      prometheus.Histogram
}

var (
	runtimeMetricsOnce sync.Once
	runtimeRegistry    *runtimeMetrics
)

// Runtime returns the lazily-initialised metrics registry tracking
// transaction execution.
func Runtime() *runtimeMetrics {
	runtimeMetricsOnce.Do(func() {
		runtimeRegistry = &runtimeMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowvault",
				Subsystem: "runtime",
				Name:      "transactions_total",
				Help:      "Count of executed transactions segmented by outcome.",
			}, []string{"outcome"}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowvault",
				Subsystem: "runtime",
				Name:      "instructions_total",
				Help:      "Count of top-level instructions segmented by program, instruction and outcome.",
			}, []string{"program", "instruction", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowvault",
				Subsystem: "runtime",
				Name:      "errors_total",
				Help:      "Count of rejected transactions segmented by error kind.",
			}, []string{"kind"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "escrowvault",
				Subsystem: "runtime",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution for transaction execution including commit.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			runtimeRegistry.transactions,
			runtimeRegistry.instructions,
			runtimeRegistry.errors,
			runtimeRegistry.latency,
		)
	})
	return runtimeRegistry
}

func outcomeLabel(ok bool) string {
	if ok {
		return "committed"
	}
	return "rejected"
}

func normalizeLabel(v, fallback string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// ObserveTransaction records the outcome and latency of one transaction. kind
// is the error classification and is ignored for committed transactions.
func (m *runtimeMetrics) ObserveTransaction(ok bool, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcomeLabel(ok)).Inc()
	if !ok {
		m.errors.WithLabelValues(normalizeLabel(kind, "internal")).Inc()
	}
	if duration > 0 {
		m.latency.Observe(duration.Seconds())
	}
}

// ObserveInstruction records the outcome of a single top-level instruction.
func (m *runtimeMetrics) ObserveInstruction(program, instruction string, ok bool) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(
		normalizeLabel(program, "unknown"),
		normalizeLabel(instruction, "unknown"),
		outcomeLabel(ok),
	).Inc()
}
