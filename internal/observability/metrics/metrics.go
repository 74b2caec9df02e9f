package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the scheduling core.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	conflictsTotal prometheus.Counter
	reserveLatency prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonflow",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Total booking requests by outcome",
		}, []string{"outcome"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salonflow",
			Subsystem: "booking",
			Name:      "reserve_conflicts_total",
			Help:      "Reservation attempts lost to a concurrent booking",
		}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salonflow",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of ledger reservation attempts",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.reserveLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveReserveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.reserveLatency.Observe(seconds)
}
