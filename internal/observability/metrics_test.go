// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LoginAttempt("rejected")
	m.LoginAttempt("rejected")
	m.ResetRequest("delivery_failed")
	m.TokenRejected("password_changed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResetRequests.WithLabelValues("delivery_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRejections.WithLabelValues("password_changed")))
}

func TestMetrics_ObserveRequestUnmatchedRoute(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}
