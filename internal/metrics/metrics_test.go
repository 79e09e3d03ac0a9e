package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/metrics"
)

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RequestStarted()
	m.RequestFinished("eth_sign", "approved", 10*time.Millisecond)
	m.DuplicateRequest()
	m.ObserveNegotiation("")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pairwallet_requests_total"])
	assert.True(t, names["pairwallet_duplicate_requests_total"])
	assert.True(t, names["pairwallet_negotiations_total"])

	count, err := testutil.GatherAndCount(reg, "pairwallet_requests_in_flight")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilServiceIsNoop(t *testing.T) {
	var m *metrics.Service

	assert.NotPanics(t, func() {
		m.RequestStarted()
		m.RequestFinished("eth_sign", "approved", time.Second)
		m.ResponseDropped("eth_sign")
		m.DuplicateRequest()
		m.ObserveNegotiation("approved")
	})
}
