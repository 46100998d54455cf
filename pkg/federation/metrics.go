package federation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks federation activity. Each node owns its registry so that
// several nodes can run in one process without collector collisions.
type Metrics struct {
	registry *prometheus.Registry

	FragmentsStored prometheus.Gauge
	PeersKnown      prometheus.Gauge

	DiscoveryRounds prometheus.Counter
	PeersDiscovered prometheus.Counter
	PeersEvicted    prometheus.Counter

	InsightRequests  prometheus.Counter
	InsightFailures  prometheus.Counter
	InsightsServed   prometheus.Counter
	InsightsDeclined prometheus.Counter

	TrustUpdates prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FragmentsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weave_fragments_stored",
			Help: "Number of knowledge fragments in the local store",
		}),
		PeersKnown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weave_peers_known",
			Help: "Number of peers in the registry",
		}),
		DiscoveryRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_discovery_rounds_total",
			Help: "Discovery broadcast rounds performed",
		}),
		PeersDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_peers_discovered_total",
			Help: "Peers registered from discovery responses",
		}),
		PeersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_peers_evicted_total",
			Help: "Stale peers removed from the registry",
		}),
		InsightRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_insight_requests_total",
			Help: "Insight requests issued to peers",
		}),
		InsightFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_insight_failures_total",
			Help: "Insight requests that failed or timed out",
		}),
		InsightsServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_insights_served_total",
			Help: "Insight requests answered for peers",
		}),
		InsightsDeclined: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_insights_declined_total",
			Help: "Insight requests declined for lack of matching concepts",
		}),
		TrustUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "weave_trust_updates_total",
			Help: "Trust score adjustments applied",
		}),
	}
}

// Registry exposes the collectors for the HTTP metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
