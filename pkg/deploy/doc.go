/*
Package deploy holds the cluster-mutating steps of a rollout.

# Preparator

A Preparator is bound to one (cluster, namespace, app, env) and runs, in
order:

	PrepareNamespace        create the namespace when missing
	                        (failure: ErrNamespaceCreateFailed)
	CreateImagePullSecrets  "<app>-<env>-registry" dockerconfigjson secret;
	                        an existing secret is reused, not an error
	ApplyDeployment         server-side apply of the manifest, then the
	                        kubernetes.io/change-cause annotation

Only the apply decides the outcome of ApplyDeployment. The annotation runs
after the workload is already live, so its error is reported in
ApplyResult.AnnotateErr and the call still succeeds. A manifest whose
Deployment has no name skips the annotation.

# Domain conflicts

CheckDomainConflict must run before ApplyDeployment. It lists every ingress
in the cluster once and returns the first declared host that an ingress in a
different namespace already routes:

	declared hosts       api.example.com, www.example.com
	cluster ingresses    ns-other/api  -> api.example.com   <- conflict
	                     ns-new/web    -> www.example.com   (same namespace)

A manifest without ingress rules returns no conflict and makes no calls.

# Scaler

Scaler.ScaleDeployment sets the replica count and polls
readiness.Checker.IsDeploymentReady every 5s for up to 300s. It returns
false on a scale error or timeout and never an error: the caller decides
whether a short replica count matters.
*/
package deploy
