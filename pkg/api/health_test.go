package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReadyHandler tests the /ready endpoint against a live store
func TestReadyHandler(t *testing.T) {
	store := newTestStore(t)
	broker := events.NewBroker()
	srv := NewServer(store, &fakeRoller{}, broker, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ready", response.Status)
	assert.Equal(t, "ok", response.Checks["storage"])
	assert.Equal(t, "ok (0 subscribers)", response.Checks["events"])
	assert.Equal(t, "0 running", response.Checks["rollouts"])
	assert.NotZero(t, response.Timestamp)
}

// TestReadyHandlerStorageDown tests that a closed store makes the server not ready
func TestReadyHandlerStorageDown(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	t.Cleanup(func() { metrics.UpdateComponent(metrics.ComponentStorage, true, "") })
	srv := NewServer(store, &fakeRoller{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not ready", response.Status)
	assert.Equal(t, "Storage not accessible", response.Message)
	assert.Contains(t, response.Checks["storage"], "error:")
	assert.Equal(t, "disabled", response.Checks["events"])
}

// TestProbeMethods tests that probe endpoints only answer GET
func TestProbeMethods(t *testing.T) {
	srv := NewServer(newTestStore(t), &fakeRoller{}, nil, nil)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET health", http.MethodGet, "/health", http.StatusOK},
		{"GET live", http.MethodGet, "/live", http.StatusOK},
		{"POST health", http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{"PUT ready", http.MethodPut, "/ready", http.StatusMethodNotAllowed},
		{"DELETE live", http.MethodDelete, "/live", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// TestMetricsEndpoint tests that /metrics exposes wharf collectors
func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(newTestStore(t), &fakeRoller{}, nil, nil)

	// one request so the API counters have a sample
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live", nil))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wharf_api_requests_total")
}
