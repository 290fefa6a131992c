// Package stats exposes AAA request counters to Prometheus.
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth results.
const (
	AuthAccept  = "accept"
	AuthReject  = "reject"
	AuthDropped = "dropped"
)

// Stats holds the AAA counters. A nil *Stats is valid and records nothing.
type Stats struct {
	registry *prometheus.Registry

	authRequests *prometheus.CounterVec
	acctRequests *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	disconnects  *prometheus.CounterVec
}

// New creates the counters on a dedicated registry.
func New() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),

		authRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_auth_requests_total",
				Help: "Access-Requests by result",
			},
			[]string{"result"},
		),

		acctRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_acct_requests_total",
				Help: "Accounting-Requests by status type",
			},
			[]string{"status"},
		),

		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_dropped_total",
				Help: "Datagrams dropped without reply",
			},
			[]string{"service", "reason"},
		),

		disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_disconnect_requests_total",
				Help: "Disconnect-Requests sent to NAS devices by result",
			},
			[]string{"result"},
		),
	}
	s.registry.MustRegister(s.authRequests, s.acctRequests, s.dropped, s.disconnects)
	return s
}

// Handler serves the counters in the Prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// AuthRequest counts an Access-Request outcome.
func (s *Stats) AuthRequest(result string) {
	if s == nil {
		return
	}
	s.authRequests.WithLabelValues(result).Inc()
}

// AcctRequest counts an Accounting-Request by status type.
func (s *Stats) AcctRequest(status string) {
	if s == nil {
		return
	}
	s.acctRequests.WithLabelValues(status).Inc()
}

// Dropped counts a datagram dropped without reply.
func (s *Stats) Dropped(service, reason string) {
	if s == nil {
		return
	}
	s.dropped.WithLabelValues(service, reason).Inc()
}

// Disconnect counts a Disconnect-Request outcome.
func (s *Stats) Disconnect(result string) {
	if s == nil {
		return
	}
	s.disconnects.WithLabelValues(result).Inc()
}
