package storage

import (
	"errors"

	"github.com/cuemby/wharf/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for control plane state storage.
// Update* methods are single-document field patches: the mutate function is
// applied to the freshly read record inside one write transaction.
type Store interface {
	// Releases
	CreateRelease(release *types.Release) error
	GetRelease(id string) (*types.Release, error)
	ListReleases() ([]*types.Release, error)
	ListReleasesByAppEnv(appSlug, env string) ([]*types.Release, error)
	UpdateRelease(id string, mutate func(*types.Release)) (*types.Release, error)
	DeactivateReleases(appSlug, env, exceptID string) (int, error)

	// Builds
	CreateBuild(build *types.Build) error
	GetBuild(id string) (*types.Build, error)
	UpdateBuild(id string, mutate func(*types.Build)) (*types.Build, error)

	// Clusters
	CreateCluster(cluster *types.Cluster) error
	GetCluster(slug string, includeUnverified bool) (*types.Cluster, error)
	ListClusters() ([]*types.Cluster, error)

	// Apps
	CreateApp(app *types.App) error
	GetApp(slug string) (*types.App, error)
	UpdateApp(slug string, mutate func(*types.App)) (*types.App, error)

	// Projects
	CreateProject(project *types.Project) error
	GetProject(slug string) (*types.Project, error)
	UpdateProject(slug string, mutate func(*types.Project)) (*types.Project, error)

	// Workspaces
	CreateWorkspace(workspace *types.Workspace) error
	GetWorkspace(slug string) (*types.Workspace, error)

	// Webhooks
	CreateWebhook(webhook *types.Webhook) error
	GetWebhook(id string) (*types.Webhook, error)
	GetWebhookByRelease(releaseID string) (*types.Webhook, error)

	// Utility
	Close() error
}
