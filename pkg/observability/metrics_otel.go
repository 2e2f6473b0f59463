package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Scope resolution metrics
	scopeComputations metric.Int64Counter
	scopeDuration     metric.Float64Histogram

	// Access check metrics
	accessChecks metric.Int64Counter

	// Cache metrics
	cacheHitsTotal   metric.Int64Counter
	cacheMissesTotal metric.Int64Counter

	// Hierarchy metrics
	treeMutations metric.Int64Counter
}

// NewOTelMetrics creates a new OTel metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/orgscope")

	m := &OTelMetrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.scopeComputations, err = meter.Int64Counter(
		"scope.computations",
		metric.WithDescription("Total number of access-scope computations"),
		metric.WithUnit("{computation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scope computations counter: %w", err)
	}

	m.scopeDuration, err = meter.Float64Histogram(
		"scope.computation.duration",
		metric.WithDescription("Access-scope computation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scope duration histogram: %w", err)
	}

	m.accessChecks, err = meter.Int64Counter(
		"access.checks",
		metric.WithDescription("Total number of access checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access checks counter: %w", err)
	}

	m.cacheHitsTotal, err = meter.Int64Counter(
		"scope.cache.hits",
		metric.WithDescription("Total number of scope cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.cacheMissesTotal, err = meter.Int64Counter(
		"scope.cache.misses",
		metric.WithDescription("Total number of scope cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	m.treeMutations, err = meter.Int64Counter(
		"hierarchy.mutations",
		metric.WithDescription("Total number of hierarchy mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree mutations counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
}

// RecordScopeComputation records one access-scope computation
func (m *OTelMetrics) RecordScopeComputation(ctx context.Context, status string, duration time.Duration) {
	m.scopeComputations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	m.scopeDuration.Record(ctx, duration.Seconds())
}

// RecordAccessCheck records one access check decision
func (m *OTelMetrics) RecordAccessCheck(ctx context.Context, kind string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.accessChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("decision", decision),
	))
}

// RecordCacheAccess records one scope cache lookup
func (m *OTelMetrics) RecordCacheAccess(ctx context.Context, tier string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	if hit {
		m.cacheHitsTotal.Add(ctx, 1, attrs)
	} else {
		m.cacheMissesTotal.Add(ctx, 1, attrs)
	}
}

// RecordTreeMutation records one hierarchy mutation
func (m *OTelMetrics) RecordTreeMutation(ctx context.Context, operation, status string) {
	m.treeMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
