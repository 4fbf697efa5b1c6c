/*
Package types defines the core data structures used throughout wharf.

This package contains the records the rollout orchestrator reads and patches:
releases, builds, clusters, apps with their deploy environments, projects,
workspaces and webhooks. It also holds the derived PodHealth snapshot computed
from live pod lists during readiness polling.

# Ownership

The orchestrator owns a Release for the duration of one rollout. Build, App,
Project and Cluster records are owned elsewhere; the orchestrator only patches
individual fields on them:

	Release:  Status, Active
	Build:    DeployStatus
	Project:  LatestBuild, LastUpdatedBy
	App:      DeployEnvironment[env].{LatestRelease, BuildID, AppVersion, Replicas}

# Invariants

At most one Release per (AppSlug, Env) has Active set after a successful
finalize. Cluster.ContextName must be non-empty before any cluster operation.

All types are plain structs serialized as JSON by the storage package.
*/
package types
