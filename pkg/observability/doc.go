// Package observability bundles the operational surface of the portal host:
// Prometheus metrics for fragment and auth activity, OpenTelemetry tracer
// and meter initialization with OTLP export, dependency health checks, and
// graceful shutdown coordination.
//
// Metrics and health endpoints are served on a side port, separate from the
// portal's own routes, so probes and scrapes are never gated by the route
// guard.
package observability
