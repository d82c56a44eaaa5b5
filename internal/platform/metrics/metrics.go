package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EventsDispatched *prometheus.CounterVec
	GatewayRequests  *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	StoreRequests    *prometheus.HistogramVec
	LoginAttempts    *prometheus.CounterVec
}

// New creates and registers all metrics on reg. Pass prometheus.NewRegistry()
// in tests so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "annogate_events_total",
			Help: "Lifecycle events dispatched to listeners",
		}, []string{"event", "action"}),
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "annogate_gateway_requests_total",
			Help: "Sub-requests issued to the annotation store, by operation and upstream status",
		}, []string{"op", "status"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "annogate_tokens_total",
			Help: "Token endpoint responses by HTTP status",
		}, []string{"status"}),
		StoreRequests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annogate_store_request_duration_seconds",
			Help:    "Latency of annotation store routes",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "annogate_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

// IncEvent counts a dispatched event.
func (m *Metrics) IncEvent(event, action string) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(event, action).Inc()
}

// IncGatewayRequest counts a gateway sub-request.
func (m *Metrics) IncGatewayRequest(op, status string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(op, status).Inc()
}

// IncTokenResponse counts a token endpoint response.
func (m *Metrics) IncTokenResponse(status string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(status).Inc()
}

// ObserveStoreRequest records the latency of a store route.
func (m *Metrics) ObserveStoreRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreRequests.WithLabelValues(route, status).Observe(seconds)
}

// IncLogin counts a login attempt outcome ("success", "failure").
func (m *Metrics) IncLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}
