// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal          *prometheus.CounterVec
	CycleDuration        *prometheus.HistogramVec
	SelectedConstituents *prometheus.GaugeVec
	SelectionShortfalls  *prometheus.CounterVec
	LastSuccessfulCycle  *prometheus.GaugeVec

	// Provider metrics
	ProviderRequestLatency *prometheus.HistogramVec
	ProviderErrors         *prometheus.CounterVec

	// Chain metrics
	ChainTransactions *prometheus.CounterVec
	ChainCallLatency  *prometheus.HistogramVec

	// History metrics
	HistoryEventsDecoded prometheus.Counter
	HistoryEventsSkipped prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "crypto_index_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebalance",
			Name:      "cycles_total",
			Help:      "Total number of rebalance cycles by index and outcome",
		}, []string{"index_id", "outcome"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rebalance",
			Name:      "cycle_duration_seconds",
			Help:      "Rebalance cycle duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"index_id"}),
		SelectedConstituents: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rebalance",
			Name:      "selected_constituents",
			Help:      "Number of constituents selected in the last cycle",
		}, []string{"index_id"}),
		SelectionShortfalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebalance",
			Name:      "selection_shortfalls_total",
			Help:      "Cycles that selected fewer constituents than targeted",
		}, []string{"index_id"}),
		LastSuccessfulCycle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last confirmed cycle",
		}, []string{"index_id"}),

		ProviderRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "External provider request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "External provider request errors",
		}, []string{"provider", "endpoint"}),

		ChainTransactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Submitted transactions by kind and status",
		}, []string{"kind", "status"}),
		ChainCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_duration_seconds",
			Help:      "Registry read/write latency",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"method"}),

		HistoryEventsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "events_decoded_total",
			Help:      "Weight-update events decoded during reconstruction",
		}),
		HistoryEventsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "events_skipped_total",
			Help:      "Weight-update events skipped because they failed to decode",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewRouter returns the ops router serving /metrics and /healthz.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

func indexLabel(indexID uint64) string {
	return strconv.FormatUint(indexID, 10)
}

// RecordCycle records a finished rebalance cycle.
func RecordCycle(indexID uint64, outcome string, durationSeconds float64) {
	label := indexLabel(indexID)
	DefaultMetrics.CyclesTotal.WithLabelValues(label, outcome).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(label).Observe(durationSeconds)
}

// RecordSelection records the size of a selection and whether it fell short.
func RecordSelection(indexID uint64, selected int, shortfall bool) {
	label := indexLabel(indexID)
	DefaultMetrics.SelectedConstituents.WithLabelValues(label).Set(float64(selected))
	if shortfall {
		DefaultMetrics.SelectionShortfalls.WithLabelValues(label).Inc()
	}
}

// RecordCycleConfirmed updates the last successful cycle gauge.
func RecordCycleConfirmed(indexID uint64, unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.WithLabelValues(indexLabel(indexID)).Set(float64(unixSeconds))
}

// RecordProviderRequest records provider request metrics.
func RecordProviderRequest(provider, endpoint string, seconds float64, err error) {
	DefaultMetrics.ProviderRequestLatency.WithLabelValues(provider, endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(provider, endpoint).Inc()
	}
}

// RecordTransaction records a submitted transaction outcome.
func RecordTransaction(kind string, err error) {
	status := "confirmed"
	if err != nil {
		status = "failed"
	}
	DefaultMetrics.ChainTransactions.WithLabelValues(kind, status).Inc()
}

// RecordChainCall records registry call latency.
func RecordChainCall(method string, seconds float64) {
	DefaultMetrics.ChainCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordHistoryEvents records decoded and skipped reconstruction events.
func RecordHistoryEvents(decoded, skipped int) {
	DefaultMetrics.HistoryEventsDecoded.Add(float64(decoded))
	DefaultMetrics.HistoryEventsSkipped.Add(float64(skipped))
}
