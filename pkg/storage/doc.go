/*
Package storage provides BoltDB-backed state persistence for wharf.

The storage package implements the Store interface using bbolt as an embedded,
transactional document store. Every record is serialized as JSON into its own
bucket, keyed by ID (releases, builds, webhooks) or slug (clusters, apps,
projects, workspaces).

# Architecture

	┌─────────────────── BOLTDB STORAGE ───────────────────┐
	│                                                        │
	│  BoltStore  (<dataDir>/wharf.db)                       │
	│     │                                                  │
	│     ├── releases    (Release ID)                       │
	│     ├── builds      (Build ID)                         │
	│     ├── clusters    (Cluster slug)                     │
	│     ├── apps        (App slug)                         │
	│     ├── projects    (Project slug)                     │
	│     ├── workspaces  (Workspace slug)                   │
	│     └── webhooks    (Webhook ID)                       │
	│                                                        │
	│  Reads:  db.View()   - concurrent                      │
	│  Writes: db.Update() - serialized, fsync on commit     │
	└────────────────────────────────────────────────────────┘

# Field Patches

The rollout orchestrator never replaces whole documents it does not own.
UpdateRelease, UpdateBuild, UpdateApp and UpdateProject take a mutate function
that runs against the record as read inside the same write transaction:

	release, err := store.UpdateRelease(id, func(r *types.Release) {
		r.Status = types.ReleaseStatusInProgress
	})

Patches are single-document. There is no multi-document atomicity:
DeactivateReleases and the final activation of a release are two separate
transactions, so concurrent rollouts of the same (app, env) can interleave.
Callers that need exclusion serialize above this layer.

# Errors

Lookups of missing records return an error wrapping ErrNotFound:

	if errors.Is(err, storage.ErrNotFound) { ... }

GetCluster treats unverified clusters as missing unless includeUnverified is
set; the rollout path always includes them so half-configured clusters can
still be drained or rolled back.
*/
package storage
