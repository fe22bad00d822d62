// Package metrics provides Prometheus instrumentation for the ledger engine.
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
	// TradesTotal counts total trades executed, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeLatency tracks the duration of the trade transaction.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finsim_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// TradeRejections counts trades refused by the ledger, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_trade_rejections_total",
		Help: "Trades rejected by the ledger",
	}, []string{"reason"})

	// PointsAwarded counts points credited to users, by source.
	PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_points_awarded_total",
		Help: "Points credited to users",
	}, []string{"source"})

	// ChallengesCompleted counts IN_PROGRESS to COMPLETED transitions.
	ChallengesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_challenges_completed_total",
		Help: "Challenges completed",
	}, []string{"kind"})

	// CertificatesIssued counts certificates created.
	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finsim_certificates_issued_total",
		Help: "Certificates issued",
	})

	// QuizAttempts counts quiz submissions by result.
	QuizAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_quiz_attempts_total",
		Help: "Quiz submissions",
	}, []string{"result"})

	// SIPSimulations counts saved SIP projections.
	SIPSimulations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finsim_sip_simulations_total",
		Help: "SIP projections saved",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finsim_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so IDs in URLs do not blow up
// cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
