package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/wharf/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketReleases   = []byte("releases")
	bucketBuilds     = []byte("builds")
	bucketClusters   = []byte("clusters")
	bucketApps       = []byte("apps")
	bucketProjects   = []byte("projects")
	bucketWorkspaces = []byte("workspaces")
	bucketWebhooks   = []byte("webhooks")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "wharf.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketReleases,
			bucketBuilds,
			bucketClusters,
			bucketApps,
			bucketProjects,
			bucketWorkspaces,
			bucketWebhooks,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get[T any](tx *bolt.Tx, bucket []byte, key string) (*T, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](tx *bolt.Tx, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := tx.Bucket(bucket).ForEach(func(k, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if keep == nil || keep(&v) {
			out = append(out, &v)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// patch reads key, applies mutate and writes it back in one transaction
func patch[T any](s *BoltStore, bucket []byte, key string, mutate func(*T)) (*T, error) {
	var out *T
	err := s.db.Update(func(tx *bolt.Tx) error {
		v, err := get[T](tx, bucket, key)
		if err != nil {
			return err
		}
		mutate(v)
		out = v
		return put(tx, bucket, key, v)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Release operations
func (s *BoltStore) CreateRelease(release *types.Release) error {
	if release.CreatedAt.IsZero() {
		release.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketReleases, release.ID, release)
	})
}

func (s *BoltStore) GetRelease(id string) (*types.Release, error) {
	var release *types.Release
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		release, err = get[types.Release](tx, bucketReleases, id)
		return err
	})
	return release, err
}

func (s *BoltStore) ListReleases() ([]*types.Release, error) {
	var releases []*types.Release
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		releases, err = list[types.Release](tx, bucketReleases, nil)
		return err
	})
	return releases, err
}

func (s *BoltStore) ListReleasesByAppEnv(appSlug, env string) ([]*types.Release, error) {
	var releases []*types.Release
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		releases, err = list(tx, bucketReleases, func(r *types.Release) bool {
			return r.AppSlug == appSlug && r.Env == env
		})
		return err
	})
	return releases, err
}

func (s *BoltStore) UpdateRelease(id string, mutate func(*types.Release)) (*types.Release, error) {
	return patch(s, bucketReleases, id, func(r *types.Release) {
		mutate(r)
		r.UpdatedAt = time.Now()
	})
}

// DeactivateReleases clears Active on every release of (appSlug, env) other
// than exceptID and returns how many were changed.
func (s *BoltStore) DeactivateReleases(appSlug, env, exceptID string) (int, error) {
	changed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		releases, err := list(tx, bucketReleases, func(r *types.Release) bool {
			return r.AppSlug == appSlug && r.Env == env && r.ID != exceptID && r.Active
		})
		if err != nil {
			return err
		}
		for _, r := range releases {
			r.Active = false
			r.UpdatedAt = time.Now()
			if err := put(tx, bucketReleases, r.ID, r); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}

// Build operations
func (s *BoltStore) CreateBuild(build *types.Build) error {
	if build.CreatedAt.IsZero() {
		build.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketBuilds, build.ID, build)
	})
}

func (s *BoltStore) GetBuild(id string) (*types.Build, error) {
	var build *types.Build
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		build, err = get[types.Build](tx, bucketBuilds, id)
		return err
	})
	return build, err
}

func (s *BoltStore) UpdateBuild(id string, mutate func(*types.Build)) (*types.Build, error) {
	return patch(s, bucketBuilds, id, func(b *types.Build) {
		mutate(b)
		b.UpdatedAt = time.Now()
	})
}

// Cluster operations
func (s *BoltStore) CreateCluster(cluster *types.Cluster) error {
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketClusters, cluster.Slug, cluster)
	})
}

// GetCluster returns the cluster by slug. Unverified clusters are reported as
// not found unless includeUnverified is set.
func (s *BoltStore) GetCluster(slug string, includeUnverified bool) (*types.Cluster, error) {
	var cluster *types.Cluster
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		cluster, err = get[types.Cluster](tx, bucketClusters, slug)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !cluster.IsVerified && !includeUnverified {
		return nil, fmt.Errorf("clusters %q unverified: %w", slug, ErrNotFound)
	}
	return cluster, nil
}

func (s *BoltStore) ListClusters() ([]*types.Cluster, error) {
	var clusters []*types.Cluster
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		clusters, err = list[types.Cluster](tx, bucketClusters, nil)
		return err
	})
	return clusters, err
}

// App operations
func (s *BoltStore) CreateApp(app *types.App) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketApps, app.Slug, app)
	})
}

func (s *BoltStore) GetApp(slug string) (*types.App, error) {
	var app *types.App
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		app, err = get[types.App](tx, bucketApps, slug)
		return err
	})
	return app, err
}

func (s *BoltStore) UpdateApp(slug string, mutate func(*types.App)) (*types.App, error) {
	return patch(s, bucketApps, slug, func(a *types.App) {
		mutate(a)
		a.UpdatedAt = time.Now()
	})
}

// Project operations
func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketProjects, project.Slug, project)
	})
}

func (s *BoltStore) GetProject(slug string) (*types.Project, error) {
	var project *types.Project
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		project, err = get[types.Project](tx, bucketProjects, slug)
		return err
	})
	return project, err
}

func (s *BoltStore) UpdateProject(slug string, mutate func(*types.Project)) (*types.Project, error) {
	return patch(s, bucketProjects, slug, func(p *types.Project) {
		mutate(p)
		p.UpdatedAt = time.Now()
	})
}

// Workspace operations
func (s *BoltStore) CreateWorkspace(workspace *types.Workspace) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketWorkspaces, workspace.Slug, workspace)
	})
}

func (s *BoltStore) GetWorkspace(slug string) (*types.Workspace, error) {
	var workspace *types.Workspace
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		workspace, err = get[types.Workspace](tx, bucketWorkspaces, slug)
		return err
	})
	return workspace, err
}

// Webhook operations
func (s *BoltStore) CreateWebhook(webhook *types.Webhook) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketWebhooks, webhook.ID, webhook)
	})
}

func (s *BoltStore) GetWebhook(id string) (*types.Webhook, error) {
	var webhook *types.Webhook
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		webhook, err = get[types.Webhook](tx, bucketWebhooks, id)
		return err
	})
	return webhook, err
}

func (s *BoltStore) GetWebhookByRelease(releaseID string) (*types.Webhook, error) {
	var found []*types.Webhook
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		found, err = list(tx, bucketWebhooks, func(w *types.Webhook) bool {
			return w.Release == releaseID
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("webhook for release %q: %w", releaseID, ErrNotFound)
	}
	return found[0], nil
}
