package contrib

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalidData = "invalid_data"
)

// Metrics counts summary outcomes and times calendar fetches.
type Metrics struct {
	summaries     *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	cacheHits     prometheus.Counter
}

// NewMetrics creates the contribution metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		summaries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_contribution_summaries_total",
				Help: "Contribution summaries served, by outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portfolio_calendar_fetch_duration_seconds",
				Help:    "Duration of contribution calendar fetches",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portfolio_calendar_cache_hits_total",
				Help: "Contribution calendars served from cache",
			},
		),
	}
	for _, outcome := range []string{OutcomeOK, OutcomeUnavailable, OutcomeInvalidData} {
		m.summaries.WithLabelValues(outcome)
	}
	if reg != nil {
		reg.MustRegister(m.summaries, m.fetchDuration, m.cacheHits)
	}
	return m
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeFetch(seconds float64) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(seconds)
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
