package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	ResultsPersisted *prometheus.CounterVec
	ReportOpens      *prometheus.CounterVec
	ReportsDeleted   prometheus.Counter
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certprep_sessions_started_total",
			Help: "Test sessions that reached the active state",
		}),
		SessionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certprep_sessions_finished_total",
				Help: "Test sessions that left the active state",
			},
			[]string{"reason"},
		),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "certprep_sessions_active",
			Help: "Test sessions currently running",
		}),
		ResultsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certprep_results_persisted_total",
				Help: "Test result writes by outcome",
			},
			[]string{"status"},
		),
		ReportOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certprep_report_opens_total",
				Help: "Report open attempts by resulting view status",
			},
			[]string{"status"},
		),
		ReportsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certprep_reports_deleted_total",
			Help: "Reports deleted after their single view",
		}),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.SessionsStarted,
		m.SessionsFinished,
		m.SessionsActive,
		m.ResultsPersisted,
		m.ReportOpens,
		m.ReportsDeleted,
		m.RequestCounter,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionFinished(reason string) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) ResultPersisted(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ResultsPersisted.WithLabelValues(status).Inc()
}

func (m *Metrics) ReportOpened(status string) {
	if m == nil {
		return
	}
	m.ReportOpens.WithLabelValues(status).Inc()
}

func (m *Metrics) ReportDeleted() {
	if m == nil {
		return
	}
	m.ReportsDeleted.Inc()
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
