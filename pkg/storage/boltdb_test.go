package storage

import (
	"errors"
	"testing"

	"github.com/cuemby/wharf/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestReleaseCRUD tests release create, get and patch
func TestReleaseCRUD(t *testing.T) {
	store := newTestStore(t)

	release := &types.Release{
		ID:      "r1",
		AppSlug: "web",
		Env:     "prod",
		Status:  types.ReleaseStatusPending,
	}
	require.NoError(t, store.CreateRelease(release))

	got, err := store.GetRelease("r1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.AppSlug)
	assert.False(t, got.CreatedAt.IsZero())

	updated, err := store.UpdateRelease("r1", func(r *types.Release) {
		r.Status = types.ReleaseStatusInProgress
	})
	require.NoError(t, err)
	assert.Equal(t, types.ReleaseStatusInProgress, updated.Status)
	assert.Equal(t, "prod", updated.Env, "patch must keep untouched fields")

	got, err = store.GetRelease("r1")
	require.NoError(t, err)
	assert.Equal(t, types.ReleaseStatusInProgress, got.Status)
}

// TestNotFound tests the ErrNotFound sentinel across record kinds
func TestNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRelease("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.UpdateBuild("missing", func(b *types.Build) {})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.GetWebhookByRelease("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.GetCluster("missing", true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestGetClusterVerification tests the include-unverified fetch mode
func TestGetClusterVerification(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateCluster(&types.Cluster{Slug: "edge", ContextName: "edge-ctx"}))

	_, err := store.GetCluster("edge", false)
	assert.True(t, errors.Is(err, ErrNotFound))

	cluster, err := store.GetCluster("edge", true)
	require.NoError(t, err)
	assert.Equal(t, "edge-ctx", cluster.ContextName)
}

// TestDeactivateReleases tests that only releases of the same app/env lose Active
func TestDeactivateReleases(t *testing.T) {
	store := newTestStore(t)

	releases := []*types.Release{
		{ID: "r1", AppSlug: "web", Env: "prod", Active: true},
		{ID: "r2", AppSlug: "web", Env: "prod", Active: true},
		{ID: "r3", AppSlug: "web", Env: "dev", Active: true},
		{ID: "r4", AppSlug: "api", Env: "prod", Active: true},
	}
	for _, r := range releases {
		require.NoError(t, store.CreateRelease(r))
	}

	changed, err := store.DeactivateReleases("web", "prod", "r2")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	want := map[string]bool{"r1": false, "r2": true, "r3": true, "r4": true}
	for id, active := range want {
		r, err := store.GetRelease(id)
		require.NoError(t, err)
		assert.Equal(t, active, r.Active, "release %s", id)
	}

	byEnv, err := store.ListReleasesByAppEnv("web", "prod")
	require.NoError(t, err)
	assert.Len(t, byEnv, 2)
}

// TestUpdateAppEnvironment tests patching a deploy environment entry
func TestUpdateAppEnvironment(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateApp(&types.App{Slug: "web", ProjectSlug: "shop"}))

	_, err := store.UpdateApp("web", func(a *types.App) {
		de := a.Environment("prod")
		de.LatestRelease = "r1"
		de.BuildID = "b1"
	})
	require.NoError(t, err)

	app, err := store.GetApp("web")
	require.NoError(t, err)
	require.Contains(t, app.DeployEnvironment, "prod")
	assert.Equal(t, "r1", app.DeployEnvironment["prod"].LatestRelease)
	assert.Equal(t, "b1", app.DeployEnvironment["prod"].BuildID)
}

// TestWebhookByRelease tests webhook lookup by release
func TestWebhookByRelease(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateWebhook(&types.Webhook{ID: "w1", Release: "r1", URL: "http://hooks.local"}))
	require.NoError(t, store.CreateWebhook(&types.Webhook{ID: "w2", Release: "r2", URL: "http://hooks.local"}))

	webhook, err := store.GetWebhookByRelease("r2")
	require.NoError(t, err)
	assert.Equal(t, "w2", webhook.ID)
}

// TestReopen tests data surviving a close/open cycle
func TestReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateProject(&types.Project{Slug: "shop"}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	project, err := store.GetProject("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", project.Slug)
}
