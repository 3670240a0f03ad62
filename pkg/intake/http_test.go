package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
)

func TestOpsHandler_Healthz(t *testing.T) {
	ok := HealthCheck{Name: "db", Check: func(context.Context) error { return nil }}
	h := NewOpsHandler(prometheus.NewRegistry(), nil, ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"db": "ok"}, body.Checks)
}

func TestOpsHandler_HealthzDegraded(t *testing.T) {
	bad := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}
	h := NewOpsHandler(prometheus.NewRegistry(), nil, bad)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestOpsHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	analysis.NewMetrics(reg).RecordAnalysis("High", "ok")
	h := NewOpsHandler(reg, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mailtriage_analyses_total")
}

func TestOpsHandler_Version(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOpsHandler(prometheus.NewRegistry(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service_name":"mailtriage"`)
}
