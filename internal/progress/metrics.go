package progress

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fallbacks   *prometheus.CounterVec
	completions *prometheus.CounterVec
	cacheResets prometheus.Counter
}

// NewMetrics creates the engine counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fracquest_remote_fallbacks_total",
				Help: "Operations served from the local cache because the remote store failed",
			},
			[]string{"operation"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fracquest_stage_completions_total",
				Help: "Completed quiz sessions by outcome",
			},
			[]string{"outcome"},
		),
		cacheResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fracquest_cache_discards_total",
				Help: "Malformed cache documents discarded and reset to baseline",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.fallbacks, m.completions, m.cacheResets)
	}
	return m
}

func (m *Metrics) fallback(op string) {
	if m != nil {
		m.fallbacks.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) completion(correct bool) {
	if m == nil {
		return
	}
	outcome := "wrong"
	if correct {
		outcome = "correct"
	}
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) cacheDiscarded() {
	if m != nil {
		m.cacheResets.Inc()
	}
}
