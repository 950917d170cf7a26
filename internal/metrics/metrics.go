package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for offers, bookings and rule translation.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	offeredSlots     prometheus.Histogram
	translations     *prometheus.CounterVec
	bookLatency      prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Booking status changes by target status and outcome",
		}, []string{"status", "outcome"}),
		offeredSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "offered_slots",
			Help:      "Number of slots offered per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "rules",
			Name:      "translations_total",
			Help:      "Natural language rule translations by outcome",
		}, []string{"outcome"}),
		bookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "book_latency_seconds",
			Help:      "Latency of the booking commit",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.offeredSlots, m.translations, m.bookLatency)
	return m
}

// ObserveBooking records one attempt. outcome is booked, unavailable, invalid or error.
func (m *SchedulingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookLatency.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveTransition(status string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitionsTotal.WithLabelValues(status, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveOffer(n int) {
	if m == nil {
		return
	}
	m.offeredSlots.Observe(float64(n))
}

func (m *SchedulingMetrics) ObserveTranslation(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.translations.WithLabelValues(outcome).Inc()
}
