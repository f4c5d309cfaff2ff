package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"go.arsenm.dev/pvrpc/metrics"
)

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.CallStarted()
		m.CallFinished("length", metrics.OutcomeOK, 0.1)
		m.UnmatchedResponse()
		m.CacheHit()
		m.CacheMiss()
		m.CacheEviction()
		m.ServerRequest("frame", metrics.OutcomeOK)
	})
}

func TestRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.CallStarted()
	m.CallStarted()
	m.CallFinished("frame", metrics.OutcomeTimeout, 0)
	m.CacheMiss()
	m.CacheHit()
	m.CacheHit()

	n, err := testutil.GatherAndCount(reg, "pvrpc_pending_calls")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pending()))
}

func TestCacheCounters(t *testing.T) {
	m := metrics.New(nil)

	m.CacheMiss()
	m.CacheHit()
	m.CacheHit()
	m.CacheEviction()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests().WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests().WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvictions()))
}
