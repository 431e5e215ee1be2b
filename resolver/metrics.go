package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds one resolver's counters. Registration is the embedder's
// choice via Config.Metrics; with a nil registerer the counters are
// collected but never exported, so resolvers built without one (the CLI
// rebuilds a resolver per watch reload) never collide in a registry.
type metrics struct {
	resolutions      *prometheus.CounterVec
	resolutionErrors *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "resolutions_total",
			Help:      "Declarations resolved, by outcome.",
		}, []string{"outcome"}),
		resolutionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "resolution_errors_total",
			Help:      "Resolution errors, by error kind.",
		}, []string{"kind"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "cache_hits_total",
			Help:      "Signature cache hits, by tier.",
		}, []string{"tier"}),
	}
}
