// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tourbook/tourbook/internal/auth"
)

// Metrics holds the application's Prometheus collectors. It implements
// auth.Recorder.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	ResetRequests   *prometheus.CounterVec
	TokenRejections *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		ResetRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_password_reset_requests_total",
				Help: "Password reset requests by result",
			},
			[]string{"result"},
		),
		TokenRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_token_rejections_total",
				Help: "Session tokens rejected by reason",
			},
			[]string{"reason"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tourbook_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.LoginAttempts, m.ResetRequests, m.TokenRejections, m.HTTPRequests, m.HTTPDuration)
	return m
}

// LoginAttempt implements auth.Recorder.
func (m *Metrics) LoginAttempt(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// ResetRequest implements auth.Recorder.
func (m *Metrics) ResetRequest(result string) {
	m.ResetRequests.WithLabelValues(result).Inc()
}

// TokenRejected implements auth.Recorder.
func (m *Metrics) TokenRejected(reason string) {
	m.TokenRejections.WithLabelValues(reason).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ auth.Recorder = (*Metrics)(nil)
