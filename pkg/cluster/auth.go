package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
)

// ClusterReader looks up cluster records
type ClusterReader interface {
	GetCluster(slug string, includeUnverified bool) (*types.Cluster, error)
}

// Authenticator resolves a cluster record and establishes its kube context
type Authenticator struct {
	clusters ClusterReader
	manager  Manager
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(clusters ClusterReader, manager Manager) *Authenticator {
	return &Authenticator{clusters: clusters, manager: manager}
}

// Authenticate returns the authenticated cluster. Unverified clusters are
// included so rollbacks and drains work on half-configured clusters. No
// retries are attempted.
func (a *Authenticator) Authenticate(ctx context.Context, slug string, owner types.Ownership) (*types.Cluster, error) {
	cluster, err := a.clusters.GetCluster(slug, true)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster %s: %w", slug, err)
	}

	if cluster.ContextName == "" {
		return nil, fmt.Errorf("cluster %s has no kube context: %w", slug, ErrUnauthenticated)
	}

	if err := a.manager.Authenticate(ctx, cluster, owner); err != nil {
		return nil, fmt.Errorf("failed to authenticate cluster %s: %w", slug, err)
	}
	return cluster, nil
}
