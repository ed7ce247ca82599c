// Package metrics provides Prometheus instrumentation for the paper
// trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed order legs, partitioned by position type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_trades_total",
		Help: "Total number of order legs executed",
	}, []string{"position_type"})

	// TradeRejections counts rejected executions by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_trade_rejections_total",
		Help: "Trade executions rejected before any state mutation",
	}, []string{"reason"})

	// ClosesTotal counts position closes, partitioned by full/partial.
	ClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_position_closes_total",
		Help: "Total number of position closes",
	}, []string{"kind"})

	// PriceLookups counts price resolutions by serving source.
	PriceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_price_lookups_total",
		Help: "Price resolutions by source (live, cache, default)",
	}, []string{"source"})

	// EvaluatorOutcomes counts labeled records emitted by the evaluator.
	EvaluatorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_evaluator_outcomes_total",
		Help: "Labeled performance records emitted by the evaluator",
	}, []string{"label"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paper_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paper_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label to avoid a chi dependency here;
		// the API surface is small enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
