package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestObjectKey tests the key layout
func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "rollouts/r1/20260304T040607Z.log", ObjectKey("r1", at))
}

// TestArchiveLogs tests an upload against a stub S3 endpoint
func TestArchiveLogs(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := NewS3Archiver(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "wharf-logs",
	})
	require.NoError(t, err)

	uri, err := a.ArchiveLogs(context.Background(), "r1", "Command failed: exit 1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "s3://wharf-logs/rollouts/r1/"), uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/wharf-logs/rollouts/r1/"), path)
	assert.Contains(t, body, "Command failed: exit 1")
}

// TestNewS3ArchiverInvalidEndpoint tests endpoint validation
func TestNewS3ArchiverInvalidEndpoint(t *testing.T) {
	_, err := NewS3Archiver(Config{Endpoint: "http://has-a-scheme:9000", Bucket: "b"})
	assert.Error(t, err)
}

// TestEnsureBucketCreatesMissing tests that a missing bucket is created once
func TestEnsureBucketCreatesMissing(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := NewS3Archiver(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "wharf-logs",
	})
	require.NoError(t, err)

	require.NoError(t, a.EnsureBucket(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodHead, http.MethodPut}, methods)
}
