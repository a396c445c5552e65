// Package observability wires logging, Prometheus metrics, OpenTelemetry export and health
// probes for the session agent.
//
// Metrics and OTelMetrics both implement session.Metrics; MultiMetrics feeds both:
//
//	registry := prometheus.NewRegistry()
//	prom := observability.NewMetrics(registry)
//	otelMetrics, err := observability.NewOTelMetrics()
//	store, err := session.New(cfg, session.Options{
//		Metrics: observability.MultiMetrics{prom, otelMetrics},
//	})
//
// Health checks are registered per dependency. A failing optional dependency such as the
// shared Redis cache reports the agent as degraded rather than unhealthy.
package observability
