package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session activity.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Auth      *prometheus.CounterVec
}

// NewMetrics registers the session collectors on reg. A nil reg builds
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mall_session_requests_total",
				Help: "Authenticated requests by outcome",
			},
			[]string{"outcome"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mall_session_refreshes_total",
				Help: "Access token refresh attempts by result",
			},
			[]string{"result"},
		),
		Auth: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mall_session_auth_total",
				Help: "Login, register and logout calls by result",
			},
			[]string{"operation", "result"},
		),
	}
}

// Label values.
const (
	requestTransportError = "transport_error"
	requestHTTPError      = "http_error"

	refreshSuccess   = "success"
	refreshRejected  = "rejected"
	refreshMissing   = "missing"
	refreshError     = "error"
	refreshSkipped   = "skipped"
	refreshDiscarded = "discarded"

	authSuccess  = "success"
	authRejected = "rejected"
	authError    = "error"
)
