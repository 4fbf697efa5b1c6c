package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAnalyzeErrorLog tests a successful analysis round trip
func TestAnalyzeErrorLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Log, "Command failed")

		_ = json.NewEncoder(w).Encode(analyzeResponse{Analysis: "DATABASE_URL is not set"})
	}))
	defer srv.Close()

	out, err := New(srv.URL, "k3y", time.Second).AnalyzeErrorLog(context.Background(), "Command failed: migrate")
	require.NoError(t, err)
	assert.Equal(t, "DATABASE_URL is not set", out)
}

// TestAnalyzeErrorLogFailures tests the error outcomes
func TestAnalyzeErrorLogFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
			want: "model overloaded",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			want: "decode",
		},
		{
			name: "empty analysis",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"analysis":"  "}`))
			},
			want: ErrEmptyAnalysis.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL, "", time.Second).AnalyzeErrorLog(context.Background(), "boom")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestAnalyzeErrorLogTruncates tests that only the log tail is sent
func TestAnalyzeErrorLogTruncates(t *testing.T) {
	var got int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got = len(req.Log)
		_, _ = w.Write([]byte(`{"analysis":"ok"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).AnalyzeErrorLog(context.Background(), strings.Repeat("x", maxLogBytes+100))
	require.NoError(t, err)
	assert.Equal(t, maxLogBytes, got)
}
