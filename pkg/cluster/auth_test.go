package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthStore(t *testing.T, clusters ...*types.Cluster) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for _, c := range clusters {
		require.NoError(t, store.CreateCluster(c))
	}
	return store
}

// TestAuthenticator tests cluster resolution and authentication outcomes
func TestAuthenticator(t *testing.T) {
	store := newAuthStore(t,
		&types.Cluster{Slug: "prod", ContextName: testContext, IsVerified: true},
		&types.Cluster{Slug: "draining", ContextName: testContext, IsVerified: false},
		&types.Cluster{Slug: "bare", IsVerified: true},
		&types.Cluster{Slug: "offline", ContextName: "offline-ctx", IsVerified: true},
	)
	m, _ := newFakeManager()
	auth := NewAuthenticator(store, m)

	tests := []struct {
		name    string
		slug    string
		wantErr error
	}{
		{name: "verified cluster", slug: "prod"},
		{name: "unverified cluster is included", slug: "draining"},
		{name: "missing cluster", slug: "prod-missing", wantErr: ErrClusterNotFound},
		{name: "no kube context", slug: "bare", wantErr: ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := auth.Authenticate(context.Background(), tt.slug, types.Ownership{Owner: "alice", Workspace: "acme"})
			if tt.wantErr != nil {
				assert.Nil(t, c)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.slug, c.Slug)
		})
	}
}

// TestAuthenticatorManagerError tests that manager failures are not retried
func TestAuthenticatorManagerError(t *testing.T) {
	store := newAuthStore(t, &types.Cluster{Slug: "prod", ContextName: "ctx", IsVerified: true})
	mgr := &countingManager{err: errors.New("connection refused")}

	_, err := NewAuthenticator(store, mgr).Authenticate(context.Background(), "prod", types.Ownership{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, mgr.calls)
}

type countingManager struct {
	Manager
	calls int
	err   error
}

func (m *countingManager) Authenticate(ctx context.Context, c *types.Cluster, owner types.Ownership) error {
	m.calls++
	return m.err
}
