/*
Package cluster talks to the Kubernetes clusters wharf deploys onto.

Manager is the kubectl-equivalent contract the rollout depends on: namespaces,
image pull secrets, declarative apply, deployment annotate/scale, pod and
ingress listing, and pod logs. Every call after Authenticate is addressed by
kube context name, the value stored in Cluster.ContextName.

KubeManager implements Manager with client-go:

	Authenticate    clientcmd context -> kubernetes + dynamic clients (cached)
	ApplyContent    server-side apply through the dynamic client and a
	                discovery-backed REST mapper (field manager "wharf")
	Annotate/Scale  JSON merge patches on apps/v1 Deployments
	LogPodsByFilter per-container GetLogs, optionally Previous

Authenticator resolves a Cluster record (unverified clusters included) and
authenticates it once. It does not retry; transient failures surface to the
caller as a single error.

The clustertest subpackage holds an in-memory Manager for tests.
*/
package cluster
