package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-enrich/internal/config"
	"github.com/sells-group/facility-enrich/internal/enrich"
	"github.com/sells-group/facility-enrich/internal/metrics"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/internal/store"
)

func ptr[T any](v T) *T { return &v }

type testHost struct {
	store  *store.SQLiteStore
	orch   *enrich.Orchestrator
	router http.Handler
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	// No credentials and no overpass endpoint: every runner is a no-op.
	c := &config.Config{Enrich: config.EnrichConfig{StrategyTimeout: time.Second}}
	o := newOrchestrator(c, st, nil, m)
	t.Cleanup(o.Wait)
	return &testHost{store: st, orch: o, router: buildRouter(o, reg)}
}

func (h *testHost) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	h := newTestHost(t)

	rr := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["jobs_in_flight"])
}

func TestBuildRouter_Metrics(t *testing.T) {
	h := newTestHost(t)
	id, err := h.store.CreateFacility(context.Background(), &model.Facility{Name: "A", Locality: "Ho"})
	require.NoError(t, err)

	require.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/facilities/"+strconv.FormatInt(id, 10)+"/enrich", nil).Code)
	h.orch.Wait()

	rr := h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `facility_enrich_jobs_total{outcome="enriched"} 1`)
}

func TestBuildRouter_Enrich(t *testing.T) {
	h := newTestHost(t)
	id, err := h.store.CreateFacility(context.Background(), &model.Facility{Name: "Ho Teaching Hospital", Locality: "Ho"})
	require.NoError(t, err)

	rr := h.do(http.MethodPost, "/facilities/"+strconv.FormatInt(id, 10)+"/enrich", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])

	h.orch.Wait()
	f, err := h.store.GetFacility(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, f.EnrichmentStatus)
}

func TestBuildRouter_Enrich_NotFound(t *testing.T) {
	h := newTestHost(t)
	rr := h.do(http.MethodPost, "/facilities/404/enrich", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_Enrich_BadID(t *testing.T) {
	h := newTestHost(t)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/facilities/abc/enrich", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/facilities/0/enrich", nil).Code)
}

func TestBuildRouter_Proposals(t *testing.T) {
	h := newTestHost(t)
	id, err := h.store.CreateFacility(context.Background(), &model.Facility{Name: "Komfo Anokye", Country: "Ghana", Capacity: ptr(40)})
	require.NoError(t, err)

	rr := h.do(http.MethodPost, "/facilities/"+strconv.FormatInt(id, 10)+"/proposals", map[string]any{
		"changes": []map[string]any{
			{"field": "region", "value": "Ashanti", "source": "https://x.example", "confidence": "high"},
			{"field": "capacity", "value": 9000, "source": "https://y.example", "confidence": "high"},
			{"field": "doctors", "value": 12, "source": "", "confidence": "high"},
		},
		"reasoning": "agent correction",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report model.QuarantineReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 1, report.Rejected)
	assert.True(t, report.Applied)
	assert.Equal(t, "agent correction", report.Reasoning)

	f, err := h.store.GetFacility(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ashanti", *f.Region)
	assert.Equal(t, 40, *f.Capacity)
}

func TestBuildRouter_Proposals_BadRequests(t *testing.T) {
	h := newTestHost(t)

	req := httptest.NewRequest(http.MethodPost, "/facilities/1/proposals", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")

	rr = h.do(http.MethodPost, "/facilities/1/proposals", map[string]any{"changes": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "changes is required")
}

func TestBuildRouter_Proposals_NotFound(t *testing.T) {
	h := newTestHost(t)
	rr := h.do(http.MethodPost, "/facilities/77/proposals", map[string]any{
		"changes": []map[string]any{{"field": "region", "value": "Volta", "source": "https://x.example", "confidence": "high"}},
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_CORSPreflight(t *testing.T) {
	h := newTestHost(t)
	req := httptest.NewRequest(http.MethodOptions, "/facilities/1/proposals", nil)
	req.Header.Set("Origin", "https://review.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
