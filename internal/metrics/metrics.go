// Package metrics provides Prometheus instrumentation for the ingester.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesTotal counts finished batches, partitioned by outcome
	// ("committed" or "failed").
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_batches_total",
		Help: "Total number of batches run",
	}, []string{"outcome"})

	// BatchDuration tracks wall time from begin to commit/rollback.
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingester_batch_duration_seconds",
		Help:    "Batch run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// InstructionsPosted counts instructions posted inside a scope. Rolled
	// back batches still count here; BatchesTotal tells them apart.
	InstructionsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_instructions_posted_total",
		Help: "Instructions posted to the ledger, by operation",
	}, []string{"operation"})

	// InstructionFailures counts failed instructions by error kind and by the
	// stage the instruction had reached.
	InstructionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_instruction_failures_total",
		Help: "Instructions that failed, by error kind and stage",
	}, []string{"kind", "stage"})

	// CashVolume tracks cumulative absolute cash moved, by operation.
	CashVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_cash_volume_total",
		Help: "Cumulative absolute cash posted",
	}, []string{"operation"})

	// NavLookups counts pricing lookups by result
	// ("found", "missing", "ambiguous", "error").
	NavLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_nav_lookups_total",
		Help: "NAV lookups by result",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingester_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingester_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
