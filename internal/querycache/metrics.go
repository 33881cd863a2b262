package querycache

import "github.com/prometheus/client_golang/prometheus"

// Registerer is the subset of prometheus.Registerer the cache needs.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

type metrics struct {
	reads     *prometheus.CounterVec
	fetches   *prometheus.CounterVec
	retries   prometheus.Counter
	evictions prometheus.Counter
}

// newMetrics builds the cache collectors. A nil registerer keeps them on a
// private registry so isolated caches in tests never collide.
func newMetrics(reg Registerer) *metrics {
	m := &metrics{
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "querycache",
				Name:      "reads_total",
				Help:      "Cache reads by result: hit, stale, miss, coalesced.",
			},
			[]string{"result"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "querycache",
				Name:      "fetches_total",
				Help:      "Completed fetches by outcome.",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "querycache",
				Name:      "retries_total",
				Help:      "Fetch attempts retried after failure.",
			},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "querycache",
				Name:      "evictions_total",
				Help:      "Entries evicted after the idle window.",
			},
		),
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(m.reads, m.fetches, m.retries, m.evictions)
	return m
}
