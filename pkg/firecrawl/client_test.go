package firecrawl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-enrich/internal/resilience"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var body SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `"Tamale Teaching Hospital" Tamale hospital`, body.Query)
		assert.Equal(t, 3, body.Limit)

		_, _ = io.WriteString(w, `{"success": true, "data": [
			{"url": "https://tth.gov.gh/about", "title": "About TTH"},
			{"url": "https://en.wikipedia.org/wiki/Tamale_Teaching_Hospital", "title": "Wiki"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{
		Query: `"Tamale Teaching Hospital" Tamale hospital`,
		Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "https://tth.gov.gh/about", resp.Data[0].URL)
}

func TestStartExtract_SendsSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["urls"], 1)
		schema, ok := body["schema"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "object", schema["type"])
		_, _ = io.WriteString(w, `{"success": true, "id": "ex-1"}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	resp, err := c.StartExtract(context.Background(), ExtractRequest{
		URLs:   []string{"https://a.example"},
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ex-1", resp.ID)
}

func TestGetExtractStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/extract/ex-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"success": true, "status": "completed", "data": {"bed_capacity": "1,200"}}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	resp, err := c.GetExtractStatus(context.Background(), "ex-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.JSONEq(t, `{"bed_capacity": "1,200"}`, string(resp.Data))
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"payment_required", http.StatusPaymentRequired, false},
		{"rate_limited", http.StatusTooManyRequests, true},
		{"server_error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"success": false}`)
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
