package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pqrs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_http_errors_total",
			Help: "HTTP errors by domain error code",
		},
		[]string{"method", "route", "code"},
	)

	RequestsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_requests_created_total",
			Help: "Requests filed, by kind",
		},
		[]string{"kind"},
	)

	AssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_assignments_total",
			Help: "Round-robin assignments by outcome",
		},
		[]string{"outcome"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_status_transitions_total",
			Help: "Request status transitions",
		},
		[]string{"from", "to"},
	)

	SweepPromotedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pqrs_sweep_promoted_total",
			Help: "Requests promoted to OVERDUE by the sweeper",
		},
	)

	SweepAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_sweep_alerts_total",
			Help: "Deadline alerts by result",
		},
		[]string{"result"},
	)

	FanoutFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pqrs_fanout_failures_total",
			Help: "Real-time notifications that could not be delivered",
		},
		[]string{"driver", "reason"},
	)

	MailFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pqrs_mail_failures_total",
			Help: "Best-effort emails that failed to send",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pqrs_websocket_connections",
			Help: "Active websocket subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestDuration, HTTPErrorsTotal,
		RequestsCreatedTotal, AssignmentsTotal, TransitionsTotal,
		SweepPromotedTotal, SweepAlertsTotal,
		FanoutFailuresTotal, MailFailuresTotal, WSConnections,
	)
}

// Metrics records HTTP level measurements. A nil *Metrics is a no-op.
type Metrics struct{}

// NewMetrics returns the HTTP recorder backed by the default prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest observes a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordError counts a request that ended in a domain error.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	HTTPErrorsTotal.WithLabelValues(method, route, code).Inc()
}
