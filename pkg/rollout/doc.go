/*
Package rollout is the saga that takes a built release and makes it the
healthy, active workload of its app environment.

# Phases

	PREPARING -> CLUSTER_AUTH -> NAMESPACE_PREP -> DOMAIN_CHECK -> APPLYING
	          -> READINESS_WAIT -> LOG_CHECK -> FINALIZING -> ACTIVE

Any phase before ACTIVE may move to FAILED. Each boundary is published as a
rollout.phase event, timed in wharf_rollout_phase_duration_seconds and, when
it has a message, passed to the ProgressFunc.

# Steps

	PREPARING       release -> in_progress; load workspace, webhook, build,
	                parse manifest
	CLUSTER_AUTH    cluster.Authenticator (unverified clusters included)
	NAMESPACE_PREP  namespace, image pull secret (existing secret reused)
	DOMAIN_CHECK    only when the manifest declares ingress hosts
	APPLYING        server-side apply + change-cause annotation
	READINESS_WAIT  no creating pods (timeout only warns), then at least one
	                Ready pod (crash fails fast); not ready does not stop
	                the saga yet
	LOG_CHECK       app-version logs, previous containers when not ready;
	                not ready or an ErrorPatterns match fails the rollout
	FINALIZING      project/app/build references, scale (short count only
	                warns), then the finalize writes
	ACTIVE          banner with the endpoint; an optional EndpointProber
	                reports whether it answers

# Failure

Fatal steps return errors; everything else goes through bestEffort, which
logs, counts and swallows both errors and panics. The failure pipeline:

 1. fires the release webhook with "failed" in a detached goroutine
 2. marks the release failed (best effort)
 3. marks the build failed (best effort)
 4. returns Result{Error, ReleaseID, BuildID}

Failures found from logs append the last 100 log lines and, for workspaces
with AI analysis enabled, either the analyzer output or "AI analysis
unavailable". A configured LogArchiver receives the full log text.

A release that cannot be loaded fails with "Release not found" and skips the
pipeline. Finalize errors are the only ones Rollout returns as a Go error.

# Concurrency

Rollout holds no locks. Two rollouts of the same app environment can both
reach FINALIZING; callers that need exclusion serialize above this package
(the API server does, per app and env).
*/
package rollout
