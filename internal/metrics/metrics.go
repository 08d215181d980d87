// Package metrics exposes operational counters for the build pipeline.
//
// Metrics are registered on the default prometheus registry so an embedding
// process can expose them alongside its own. They are visibility only;
// no correctness decision reads them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (

	// Number of isolation contexts currently provisioned and not yet
	// torn down. A non-zero value after all builds return indicates a
	// leaked container or staging directory.
	ActiveContexts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wheelforge",
		Name:      "active_isolation_contexts",
		Help:      "Isolation contexts currently provisioned.",
	})

	// Completed build requests by outcome. The outcome label is "success"
	// or the failure code (e.g., "BackendFailed").
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wheelforge",
		Name:      "builds_total",
		Help:      "Completed build requests by outcome.",
	}, []string{"outcome"})

	// Artifacts published by kind ("wheel" or "sdist").
	ArtifactsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wheelforge",
		Name:      "artifacts_published_total",
		Help:      "Artifacts atomically published by kind.",
	}, []string{"kind"})
)
