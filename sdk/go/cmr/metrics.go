// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-operation request counts and latencies. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	tokenRefreshes prometheus.Counter
	expiryProbes   *prometheus.CounterVec
}

// NewMetrics returns a Metrics whose collectors are registered with
// reg. If reg is nil, the collectors are created but not registered.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmr",
			Subsystem: "client",
			Name:      "requests",
			Help:      "Number of requests sent, by operation and response status code.",
		}, []string{"operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cmr",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to reading the whole response body.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"operation"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cmr",
			Subsystem: "client",
			Name:      "token_refreshes",
			Help:      "Number of times a new token was obtained.",
		}),
		expiryProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmr",
			Subsystem: "client",
			Name:      "expiry_probes",
			Help:      "Number of token expiry checks, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.tokenRefreshes, m.expiryProbes)
	}
	return m
}

func (m *Metrics) observeRequest(op string, code int, t0 time.Time) {
	if m == nil {
		return
	}
	// code 0 means no response was received
	m.requests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(t0).Seconds())
}

func (m *Metrics) countRefresh() {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc()
}

func (m *Metrics) countProbe(expired bool) {
	if m == nil {
		return
	}
	if expired {
		m.expiryProbes.WithLabelValues("expired").Inc()
	} else {
		m.expiryProbes.WithLabelValues("valid").Inc()
	}
}
