package checkout

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors.  A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	negotiations      *prometheus.CounterVec
	negotiationTime   prometheus.Histogram
	staleResponses    prometheus.Counter
	debounceCoalesced prometheus.Counter
	persistFailures   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.  Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		negotiations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_negotiations_total",
				Help: "Pricing preview negotiations by outcome",
			},
			[]string{"outcome"},
		),
		negotiationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_negotiation_duration_seconds",
				Help:    "Pricing preview round trip duration",
				Buckets: prometheus.DefBuckets,
			},
		),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_stale_responses_total",
			Help: "Preview responses discarded because a newer negotiation was issued",
		}),
		debounceCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_debounce_coalesced_total",
			Help: "Pricing inputs folded into a later negotiation by the debounce window",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_decision_persist_failures_total",
			Help: "Credit decisions that could not be persisted",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.negotiations, m.negotiationTime, m.staleResponses, m.debounceCoalesced, m.persistFailures)
	}
	return m
}

func (m *Metrics) outcome(c Class) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(string(c)).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m == nil {
		return
	}
	m.negotiationTime.Observe(d.Seconds())
}

func (m *Metrics) stale() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

func (m *Metrics) coalesced() {
	if m == nil {
		return
	}
	m.debounceCoalesced.Inc()
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}
