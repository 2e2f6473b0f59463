package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.ScopeComputationsTotal == nil {
		t.Error("ScopeComputationsTotal is nil")
	}
	if metrics.AccessChecksTotal == nil {
		t.Error("AccessChecksTotal is nil")
	}
	if metrics.TreeMutationsTotal == nil {
		t.Error("TreeMutationsTotal is nil")
	}
	if metrics.GrantMutationsTotal == nil {
		t.Error("GrantMutationsTotal is nil")
	}
	if metrics.IntegrityIssuesFound == nil {
		t.Error("IntegrityIssuesFound is nil")
	}
	if metrics.DirectoryQueriesTotal == nil {
		t.Error("DirectoryQueriesTotal is nil")
	}
}

func TestNewMetricsDoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustRegister to panic on duplicate registration")
		}
	}()
	NewMetrics(registry)
}

func TestAccessCheckCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.AccessChecksTotal.WithLabelValues("path", "allowed").Inc()
	metrics.AccessChecksTotal.WithLabelValues("path", "allowed").Inc()
	metrics.AccessChecksTotal.WithLabelValues("path", "denied").Inc()

	expected := `
		# HELP orgscope_access_checks_total Total number of access checks by kind and decision
		# TYPE orgscope_access_checks_total counter
		orgscope_access_checks_total{decision="allowed",kind="path"} 2
		orgscope_access_checks_total{decision="denied",kind="path"} 1
	`
	if err := testutil.CollectAndCompare(metrics.AccessChecksTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter state: %v", err)
	}
}

func TestTreeMutationCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.TreeMutationsTotal.WithLabelValues("move", "success").Inc()

	expected := `
		# HELP orgscope_tree_mutations_total Total number of hierarchy mutations
		# TYPE orgscope_tree_mutations_total counter
		orgscope_tree_mutations_total{operation="move",status="success"} 1
	`
	if err := testutil.CollectAndCompare(metrics.TreeMutationsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter state: %v", err)
	}
}

func TestUpdateDBStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.UpdateDBStats(7, 3, 12, 250*time.Millisecond)

	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got != 7 {
		t.Errorf("DBConnectionsActive = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsIdle); got != 3 {
		t.Errorf("DBConnectionsIdle = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsWaitDuration); got != 0.25 {
		t.Errorf("DBConnectionsWaitDuration = %v, want 0.25", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"n1"}`))
	}))

	req := httptest.NewRequest("POST", "/api/v1/nodes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	expected := `
		# HELP orgscope_http_requests_total Total number of HTTP requests
		# TYPE orgscope_http_requests_total counter
		orgscope_http_requests_total{method="POST",path="/api/v1/nodes",status="201"} 1
	`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter state: %v", err)
	}

	if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count == 0 {
		t.Error("expected request duration to be observed")
	}
	if count := testutil.CollectAndCount(metrics.HTTPResponseSize); count == 0 {
		t.Error("expected response size to be observed")
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.NodesTotal.Set(4)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "orgscope_nodes_total 4") {
		t.Error("expected nodes gauge in /metrics output")
	}
}
