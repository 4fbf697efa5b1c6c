package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeHealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wharf-probe", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res := NewHTTPProber().Probe(context.Background(), server.URL)

	assert.True(t, res.Healthy, res.Message)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "HTTP 200 OK", res.Message)
	assert.Positive(t, res.Duration)
}

func TestProbeRetriesUntilHealthy(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewHTTPProber()
	p.Interval = time.Millisecond
	res := p.Probe(context.Background(), server.URL)

	assert.True(t, res.Healthy)
	assert.Equal(t, 3, res.Attempts)
}

func TestProbeUnhealthy(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		min     int
		max     int
		healthy bool
		message string
	}{
		{"server error", http.StatusInternalServerError, 200, 399, false, "HTTP 500 Internal Server Error (expected 200-399)"},
		{"redirect in range", http.StatusFound, 200, 399, true, "HTTP 302 Found"},
		{"redirect outside custom range", http.StatusFound, 200, 299, false, "HTTP 302 Found (expected 200-299)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p := NewHTTPProber()
			p.ExpectedStatusMin, p.ExpectedStatusMax = tt.min, tt.max
			p.Attempts = 2
			p.Interval = time.Millisecond
			// no redirect following so 302 is observed
			p.Client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

			res := p.Probe(context.Background(), server.URL)
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewHTTPProber()
	p.Attempts = 1
	p.Client.Timeout = 50 * time.Millisecond

	res := p.Probe(context.Background(), server.URL)
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "request failed")
}

func TestProbeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewHTTPProber()
	p.Interval = time.Hour
	res := p.Probe(ctx, server.URL)

	assert.False(t, res.Healthy)
	assert.Equal(t, 1, res.Attempts)
}
