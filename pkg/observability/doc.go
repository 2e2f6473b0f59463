// Package observability provides logging, metrics, tracing, health checks,
// and lifecycle helpers for the orgscope services.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler. Request-scoped loggers are
// carried through context (see FromContext), picking up request_id and
// actor_id automatically.
//
// # Metrics
//
// Metrics registers all Prometheus series under the orgscope_ prefix: HTTP
// request counters and histograms, scope computation and cache series,
// access check decisions, tree and grant mutation counters, integrity issue
// gauges, and database pool gauges. HTTPMetricsMiddleware instruments every
// request; RegisterMetricsEndpoint exposes /metrics.
//
// # Tracing
//
// InitOTel wires OTLP gRPC trace and metric exporters and installs the
// global providers and propagators. OTelMetrics offers instrument-based
// counterparts for services that export through the meter provider.
//
// # Health and lifecycle
//
// HealthChecker probes the database and Redis for readiness (Redis loss only
// degrades, since it just backs the scope cache). ShutdownManager drains the
// HTTP server and runs registered shutdown functions on SIGINT/SIGTERM.
package observability
