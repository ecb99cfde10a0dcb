package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the chain-interaction layer.
type Metrics struct {
	cacheLookups  *prometheus.CounterVec
	cacheFetches  *prometheus.CounterVec
	readFallbacks *prometheus.CounterVec
	buildRetries  prometheus.Counter
	submissions   *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Metrics
)

// Default returns the process-wide collectors registered with the default
// prometheus registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultRegistry = New(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// New builds collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_cache_lookups_total",
			Help: "Read-model cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_cache_fetches_total",
			Help: "Underlying fetches issued by the read-model cache by outcome.",
		}, []string{"cache", "outcome"}),
		readFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_read_fallbacks_total",
			Help: "Read path degradations by component and source served.",
		}, []string{"component", "source"}),
		buildRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "betledger_build_retries_total",
			Help: "Transaction build attempts retried on account visibility.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_submissions_total",
			Help: "Submission protocol transitions by resulting state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheLookups, m.cacheFetches, m.readFallbacks, m.buildRetries, m.submissions)
	}
	return m
}

func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ObserveCacheFetch(cache string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheFetches.WithLabelValues(cache, outcome).Inc()
}

func (m *Metrics) ObserveReadSource(component, source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.readFallbacks.WithLabelValues(component, source).Inc()
}

func (m *Metrics) ObserveBuildRetry() {
	if m == nil {
		return
	}
	m.buildRetries.Inc()
}

func (m *Metrics) ObserveSubmission(state string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(state).Inc()
}
