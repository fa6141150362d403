package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts cache traffic. Collectors are only registered when a
// registerer is given.
type Metrics struct {
	fetches *prometheus.CounterVec
	hits    *prometheus.CounterVec
	shared  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globe",
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Network fetches issued by the temporal cache, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globe",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Lookups answered from the cache without fetching.",
		}, []string{"kind"}),
		shared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globe",
			Subsystem: "cache",
			Name:      "singleflight_shared_total",
			Help:      "Callers that received the result of another caller's in-flight fetch.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.hits, m.shared)
	}
	return m
}
