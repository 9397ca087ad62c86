package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type engineMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	oracleErrors *prometheus.CounterVec
	poolRates    *prometheus.GaugeVec
}

type messagingMetrics struct {
	sent       *prometheus.CounterVec
	completed  *prometheus.CounterVec
	duplicates prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics

	messagingMetricsOnce sync.Once
	messagingRegistry    *messagingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Engine returns the metrics registry for lending engine operations.
func Engine() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crosslend",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations segmented by asset.",
			}, []string{"asset"}),
			oracleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "engine",
				Name:      "oracle_errors_total",
				Help:      "Count of failed price reads segmented by asset and reason.",
			}, []string{"asset", "reason"}),
			poolRates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "crosslend",
				Subsystem: "engine",
				Name:      "pool_rate_bps",
				Help:      "Current pool rates in basis points segmented by asset and side.",
			}, []string{"asset", "side"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.liquidations,
			engineRegistry.oracleErrors,
			engineRegistry.poolRates,
		)
	})
	return engineRegistry
}

// ObserveOperation records the execution of a ledger operation.
func (m *engineMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLiquidation increments the liquidation counter for an asset.
func (m *engineMetrics) RecordLiquidation(asset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(labelAsset(asset)).Inc()
}

// RecordOracleError increments the failed price read counter.
func (m *engineMetrics) RecordOracleError(asset, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.oracleErrors.WithLabelValues(labelAsset(asset), reason).Inc()
}

// RecordPoolRates updates the borrow and supply rate gauges for an asset.
func (m *engineMetrics) RecordPoolRates(asset string, borrowRateBps, supplyRateBps uint64) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.poolRates.WithLabelValues(label, "borrow").Set(float64(borrowRateBps))
	m.poolRates.WithLabelValues(label, "supply").Set(float64(supplyRateBps))
}

// Messaging returns the metrics registry for cross-chain message flow.
func Messaging() *messagingMetrics {
	messagingMetricsOnce.Do(func() {
		messagingRegistry = &messagingMetrics{
			sent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "crosschain",
				Name:      "messages_sent_total",
				Help:      "Count of outbound operation messages segmented by operation.",
			}, []string{"operation"}),
			completed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "crosschain",
				Name:      "messages_completed_total",
				Help:      "Count of inbound messages processed segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "crosschain",
				Name:      "duplicate_messages_total",
				Help:      "Count of inbound messages skipped because their id was already fulfilled.",
			}),
		}
		prometheus.MustRegister(
			messagingRegistry.sent,
			messagingRegistry.completed,
			messagingRegistry.duplicates,
		)
	})
	return messagingRegistry
}

// RecordSent increments the outbound message counter.
func (m *messagingMetrics) RecordSent(operation string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(labelOp(operation)).Inc()
}

// RecordCompleted increments the inbound completion counter.
func (m *messagingMetrics) RecordCompleted(operation string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.completed.WithLabelValues(labelOp(operation), outcome).Inc()
}

// RecordDuplicate increments the duplicate delivery counter.
func (m *messagingMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func labelOp(operation string) string {
	trimmed := strings.TrimSpace(operation)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
