/*
 *	pvrpc carries typed method calls over ordered packet channels.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package metrics exposes prometheus collectors for pvrpc clients,
// caches and servers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes
const (
	OutcomeOK            = "ok"
	OutcomeRemoteFailure = "remote_failure"
	OutcomeTimeout       = "timeout"
	OutcomeClosed        = "closed"
	OutcomeSendFailure   = "send_failure"
)

// Metrics holds the pvrpc collectors
type Metrics struct {
	calls     *prometheus.CounterVec
	pending   prometheus.Gauge
	unmatched prometheus.Counter
	latency   *prometheus.HistogramVec

	cacheRequests  *prometheus.CounterVec
	cacheEvictions prometheus.Counter

	serverRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// If reg is nil, the collectors are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pvrpc",
			Name:      "calls_total",
			Help:      "Calls dispatched by the client, by method and outcome",
		}, []string{"method", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pvrpc",
			Name:      "pending_calls",
			Help:      "Calls waiting for a response",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pvrpc",
			Name:      "unmatched_responses_total",
			Help:      "Responses discarded because no call was waiting for them",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pvrpc",
			Name:      "call_duration_seconds",
			Help:      "Time between sending a request and receiving its response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pvrpc",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups, by result",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pvrpc",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted from the cache",
		}),
		serverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pvrpc",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests handled by the server, by method and outcome",
		}, []string{"method", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.calls,
			m.pending,
			m.unmatched,
			m.latency,
			m.cacheRequests,
			m.cacheEvictions,
			m.serverRequests,
		)
	}

	return m
}

// CallStarted records a dispatched call
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// CallFinished records the outcome of a dispatched call.
// seconds is ignored for calls that did not receive a response.
func (m *Metrics) CallFinished(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.calls.WithLabelValues(method, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeRemoteFailure {
		m.latency.WithLabelValues(method).Observe(seconds)
	}
}

// UnmatchedResponse records a discarded response
func (m *Metrics) UnmatchedResponse() {
	if m == nil {
		return
	}
	m.unmatched.Inc()
}

// CacheHit records a lookup that found an entry
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss records a lookup that created an entry
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

// CacheEviction records an evicted entry
func (m *Metrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// ServerRequest records a request handled by a server
func (m *Metrics) ServerRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(method, outcome).Inc()
}

// Pending returns the gauge of calls waiting for a response
func (m *Metrics) Pending() prometheus.Gauge {
	return m.pending
}

// Calls returns the counter of finished calls
func (m *Metrics) Calls() *prometheus.CounterVec {
	return m.calls
}

// Unmatched returns the counter of discarded responses
func (m *Metrics) Unmatched() prometheus.Counter {
	return m.unmatched
}

// CacheRequests returns the counter of cache lookups
func (m *Metrics) CacheRequests() *prometheus.CounterVec {
	return m.cacheRequests
}

// CacheEvictions returns the counter of cache evictions
func (m *Metrics) CacheEvictions() prometheus.Counter {
	return m.cacheEvictions
}
