package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout outcomes.
const (
	OutcomeCompleted        = "completed"
	OutcomeInsufficient     = "insufficient_stock"
	OutcomeRejected         = "rejected"
	OutcomeOverrideApproved = "override_approved"
	OutcomeFailed           = "failed"
)

// Email report results.
const (
	ReportSent             = "sent"
	ReportGenerationFailed = "generation_failed"
	ReportSendFailed       = "send_failed"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	revenue         *prometheus.CounterVec
	layawayPayments prometheus.Counter
	reports         *prometheus.CounterVec
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duka_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duka_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duka_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	revenue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duka_sales_revenue_total",
		Help: "Committed sale totals by payment method.",
	}, []string{"method"})
	layawayPayments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duka_layaway_payments_total",
		Help: "Layaway payments recorded.",
	})
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duka_email_reports_total",
		Help: "Email report pipeline runs by stage result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, checkouts, revenue, layawayPayments, reports)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		checkouts:       checkouts,
		revenue:         revenue,
		layawayPayments: layawayPayments,
		reports:         reports,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveCheckout counts a checkout attempt. Revenue is added for completed sales only.
func (m *Metrics) ObserveCheckout(outcome, method string, total float64) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted && total > 0 {
		m.revenue.WithLabelValues(method).Add(total)
	}
}

// ObserveLayawayPayment counts a recorded layaway payment.
func (m *Metrics) ObserveLayawayPayment() {
	if m == nil {
		return
	}
	m.layawayPayments.Inc()
}

// ObserveReport counts an email report run by result.
func (m *Metrics) ObserveReport(result string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(result).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
