package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CartCreated()
	m.CartCreated()
	m.CartFinalized()
	m.OpenCartConflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cartsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartsFinalized))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartConflicts))
}

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("GET", "/cart/user", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "/cart/user", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/cart/user", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CartCreated()
		m.CartFinalized()
		m.OpenCartConflict()
		m.ObserveRequest("GET", "/", 200, time.Second)
	})
}
