package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("booked", 0.01)
	m.ObserveBooking("unavailable", 0.02)
	m.ObserveBooking("unavailable", 0.02)
	m.ObserveTransition("cancelled", nil)
	m.ObserveTransition("cancelled", errors.New("x"))
	m.ObserveTranslation(false)
	m.ObserveOffer(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("booked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancelled", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.translations.WithLabelValues("failed")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("booked", 0.1)
	m.ObserveTransition("confirmed", nil)
	m.ObserveOffer(3)
	m.ObserveTranslation(true)
}
