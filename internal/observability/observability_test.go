package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, prov)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, WrapHandler(handler, nil))
}

func TestRecordersAreSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordBulkAction(context.Background(), BulkActionMetrics{Action: "approve", Mode: "sync", Successful: 1})
		RecordCurationJob(context.Background(), CurationJobMetrics{JobID: "j", Status: "completed", Duration: time.Second})
		RecordClassification(context.Background(), "curated")
		_, span := StartCurationJobSpan(context.Background(), CurationJobSpanInfo{JobID: "j", Products: 2})
		span.End()
	})
}

func TestInit_EnabledServesCurationMetrics(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, prov)
	defer func() { _ = prov.Shutdown(context.Background()) }()

	assert.Equal(t, "catalog-backoffice", prov.Config.ServiceName)

	ctx := context.Background()
	RecordBulkAction(ctx, BulkActionMetrics{Action: "reject", Mode: "sync", Successful: 2, Failed: 1})
	RecordClassification(ctx, "curated")
	_, span := StartCurationJobSpan(ctx, CurationJobSpanInfo{JobID: "j1", Products: 1})
	span.End()

	rec := httptest.NewRecorder()
	prov.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "catalog_curation_bulk_action_total")
	assert.Contains(t, body, "catalog_curation_classification_total")
	assert.Contains(t, body, "catalog_curation_job_in_flight")
}

func TestWrapHandler_SkipsHealthProbes(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	defer func() { _ = prov.Shutdown(context.Background()) }()

	var sawSpan bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = trace.SpanContextFromContext(r.Context()).IsValid()
	})
	wrapped := WrapHandler(inner, prov)

	tests := []struct {
		path     string
		wantSpan bool
	}{
		{"/health", false},
		{"/health/db", false},
		{"/api/scraper/products", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			sawSpan = false
			wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantSpan, sawSpan)
		})
	}
}

func TestEndpointOption(t *testing.T) {
	assert.NotNil(t, endpointOption("https://otel.example.com/v1/traces"))
	assert.NotNil(t, endpointOption("otel.example.com:4318"))
}
