package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for token queue flows.
type QueueMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	allocationLatency *prometheus.HistogramVec
	tokenConflicts    *prometheus.CounterVec
	liveSubscribers   prometheus.Gauge
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caretoken",
			Subsystem: "queue",
			Name:      "bookings_total",
			Help:      "Total token bookings by source, priority class and outcome",
		}, []string{"source", "class", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caretoken",
			Subsystem: "queue",
			Name:      "transitions_total",
			Help:      "Total appointment state transitions",
		}, []string{"from", "to"}),
		allocationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caretoken",
			Subsystem: "queue",
			Name:      "token_allocation_seconds",
			Help:      "Latency of token allocation per backend",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		tokenConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caretoken",
			Subsystem: "queue",
			Name:      "token_conflicts_total",
			Help:      "Bookings rejected by the token partition unique constraint",
		}, []string{"backend"}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "caretoken",
			Subsystem: "queue",
			Name:      "live_subscribers",
			Help:      "Open live queue board connections",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.allocationLatency, m.tokenConflicts, m.liveSubscribers)
	return m
}

func (m *QueueMetrics) ObserveBooking(source, class, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(source, class, outcome).Inc()
}

func (m *QueueMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *QueueMetrics) ObserveAllocation(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.allocationLatency.WithLabelValues(backend).Observe(seconds)
}

func (m *QueueMetrics) ObserveConflict(backend string) {
	if m == nil {
		return
	}
	m.tokenConflicts.WithLabelValues(backend).Inc()
}

// LiveSubscriberDelta adjusts the open board connection gauge.
func (m *QueueMetrics) LiveSubscriberDelta(delta float64) {
	if m == nil {
		return
	}
	m.liveSubscribers.Add(delta)
}
