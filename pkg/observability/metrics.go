package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/notify"
)

// Metrics holds the Prometheus collectors of the session agent. It implements
// session.Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Session metrics
	LoginAttemptsTotal *prometheus.CounterVec
	LoginDuration      *prometheus.HistogramVec
	SessionActive      prometheus.Gauge
	ForcedLogoutsTotal *prometheus.CounterVec
	ReconcilesTotal    *prometheus.CounterVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cura_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cura_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cura_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cura_login_attempts_total",
				Help: "Login attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		LoginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cura_login_duration_seconds",
				Help:    "Time spent authenticating a login attempt",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"strategy"},
		),
		SessionActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cura_session_active",
				Help: "1 while a user is signed in on this agent",
			},
		),
		ForcedLogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cura_forced_logouts_total",
				Help: "Sessions ended without the user asking",
			},
			[]string{"reason"},
		),
		ReconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cura_reconciles_total",
				Help: "Backend reconciliations by outcome",
			},
			[]string{"outcome"},
		),

		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cura_notifications_total",
				Help: "Notifications delivered by sink and status",
			},
			[]string{"sink", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.LoginAttemptsTotal,
		m.LoginDuration,
		m.SessionActive,
		m.ForcedLogoutsTotal,
		m.ReconcilesTotal,
		m.NotificationsTotal,
	)

	return m
}

// ObserveLogin records the result of a login attempt. Rejected concurrent attempts are
// counted but not timed.
func (m *Metrics) ObserveLogin(strategy string, outcome auth.Outcome, elapsed time.Duration) {
	m.LoginAttemptsTotal.WithLabelValues(strategy, string(outcome)).Inc()
	if outcome != auth.OutcomeInProgress {
		m.LoginDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

// SetActive flips the active session gauge
func (m *Metrics) SetActive(active bool) {
	if active {
		m.SessionActive.Set(1)
		return
	}
	m.SessionActive.Set(0)
}

// ForcedLogout counts a session ended for reason
func (m *Metrics) ForcedLogout(reason string) {
	m.ForcedLogoutsTotal.WithLabelValues(reason).Inc()
}

// ObserveReconcile counts a reconciliation outcome
func (m *Metrics) ObserveReconcile(outcome string) {
	m.ReconcilesTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a delivery attempt through sink
func (m *Metrics) ObserveNotification(sink string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.NotificationsTotal.WithLabelValues(sink, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Flush forwards to the underlying writer for wrappers that only look for http.Flusher
func (rw *responseWriter) Flush() {
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}

// HTTPMetricsMiddleware instruments requests. Requests are labelled with the matched route
// template so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

type instrumentedSink struct {
	notify.Sink
	metrics *Metrics
}

// InstrumentSink counts every delivery attempt through sink
func InstrumentSink(sink notify.Sink, metrics *Metrics) notify.Sink {
	return instrumentedSink{Sink: sink, metrics: metrics}
}

func (s instrumentedSink) Send(ctx context.Context, msg notify.Message) error {
	err := s.Sink.Send(ctx, msg)
	s.metrics.ObserveNotification(s.Sink.Name(), err)
	return err
}
