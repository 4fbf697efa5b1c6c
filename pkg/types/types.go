package types

import (
	"time"
)

// ReleaseStatus represents the rollout state of a release
type ReleaseStatus string

const (
	ReleaseStatusPending    ReleaseStatus = "pending"
	ReleaseStatusInProgress ReleaseStatus = "in_progress"
	ReleaseStatusSuccess    ReleaseStatus = "success"
	ReleaseStatusFailed     ReleaseStatus = "failed"
)

// Release is a build promoted toward a deploy environment
type Release struct {
	ID             string        `json:"id"`
	Slug           string        `json:"slug"`
	AppSlug        string        `json:"appSlug"`
	ProjectSlug    string        `json:"projectSlug"`
	Env            string        `json:"env"`
	Cluster        string        `json:"cluster"` // Cluster slug
	Namespace      string        `json:"namespace"`
	DeploymentYAML string        `json:"deploymentYaml"`
	Endpoint       string        `json:"endpoint,omitempty"`
	BuildID        string        `json:"buildId"`
	Owner          string        `json:"owner"`
	Workspace      string        `json:"workspace"`
	Message        string        `json:"message,omitempty"`
	AppVersion     string        `json:"appVersion,omitempty"`
	Status         ReleaseStatus `json:"status"`
	Active         bool          `json:"active"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// BuildStatus represents the deploy state of a build
type BuildStatus string

const (
	BuildStatusPending  BuildStatus = "pending"
	BuildStatusBuilding BuildStatus = "building"
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusFailed   BuildStatus = "failed"
)

// Build is a finished container image produced by the build pipeline
type Build struct {
	ID           string      `json:"id"`
	Tag          string      `json:"tag"`
	Image        string      `json:"image,omitempty"`
	AppSlug      string      `json:"appSlug,omitempty"`
	DeployStatus BuildStatus `json:"deployStatus"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Cluster is a Kubernetes cluster registered with the control plane
type Cluster struct {
	Slug        string    `json:"slug"`
	ContextName string    `json:"contextName,omitempty"` // Empty until authenticated
	PrimaryIP   string    `json:"primaryIp,omitempty"`
	IsVerified  bool      `json:"isVerified"`
	Owner       string    `json:"owner,omitempty"`
	Workspace   string    `json:"workspace,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeployEnvironment is a named target (dev, prod, ...) of an app
type DeployEnvironment struct {
	Cluster       string   `json:"cluster"`
	Namespace     string   `json:"namespace"`
	Domains       []string `json:"domains,omitempty"`
	LatestRelease string   `json:"latestRelease,omitempty"`
	BuildID       string   `json:"buildId,omitempty"`
	AppVersion    string   `json:"appVersion,omitempty"`
	Replicas      int32    `json:"replicas,omitempty"`
}

// App is a deployable application within a project
type App struct {
	Slug              string                        `json:"slug"`
	ProjectSlug       string                        `json:"projectSlug"`
	Owner             string                        `json:"owner,omitempty"`
	Workspace         string                        `json:"workspace,omitempty"`
	DeployEnvironment map[string]*DeployEnvironment `json:"deployEnvironment,omitempty"`
	UpdatedAt         time.Time                     `json:"updatedAt"`
}

// Environment returns the named deploy environment, creating it if missing
func (a *App) Environment(env string) *DeployEnvironment {
	if a.DeployEnvironment == nil {
		a.DeployEnvironment = make(map[string]*DeployEnvironment)
	}
	de, ok := a.DeployEnvironment[env]
	if !ok {
		de = &DeployEnvironment{}
		a.DeployEnvironment[env] = de
	}
	return de
}

// Project groups apps
type Project struct {
	Slug          string    `json:"slug"`
	Owner         string    `json:"owner,omitempty"`
	Workspace     string    `json:"workspace,omitempty"`
	LatestBuild   string    `json:"latestBuild,omitempty"`
	LastUpdatedBy string    `json:"lastUpdatedBy,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Workspace is a tenant
type Workspace struct {
	Slug              string `json:"slug"`
	Name              string `json:"name,omitempty"`
	AIAnalysisEnabled bool   `json:"aiAnalysisEnabled"`
}

// Webhook is an optional notification target bound to a release
type Webhook struct {
	ID      string   `json:"id"`
	Release string   `json:"release"` // Release ID
	URL     string   `json:"url"`
	Secret  string   `json:"secret,omitempty"`
	Events  []string `json:"events,omitempty"` // Empty means all events
}

// Wants reports whether the webhook subscribes to the named event
func (w *Webhook) Wants(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// PodHealth is a point-in-time health snapshot of a deployment's pods
type PodHealth struct {
	TotalPods    int  `json:"totalPods"`
	CrashedPods  int  `json:"crashedPods"`
	CreatingPods int  `json:"creatingPods"`
	RunningPods  int  `json:"runningPods"`
	IsHealthy    bool `json:"isHealthy"`
}

// Ownership identifies who a cluster operation is performed for
type Ownership struct {
	Owner     string
	Workspace string
}
