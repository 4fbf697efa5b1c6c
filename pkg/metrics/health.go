package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Components registered by wharf serve. Target clusters report under
// ClusterComponent.
const (
	ComponentStorage = "storage"
	ComponentEvents  = "events"
	ComponentAPI     = "api"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// critical components make /health unhealthy; any other failing component
// only degrades it
var critical = map[string]bool{
	ComponentStorage: true,
	ComponentAPI:     true,
}

// ClusterComponent names the registry entry of a target cluster
func ClusterComponent(slug string) string {
	return "cluster/" + slug
}

// Health is the body served on /health
type Health struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Degraded   []string          `json:"degraded,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentState struct {
	healthy bool
	message string
	since   time.Time
}

type registry struct {
	mu         sync.RWMutex
	components map[string]componentState
	started    time.Time
	version    string
}

func newRegistry(version string) *registry {
	return &registry{
		components: make(map[string]componentState),
		started:    time.Now(),
		version:    version,
	}
}

var components = newRegistry("")

// SetVersion sets the version reported on /health
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// RegisterComponent records a component's state. A component keeps its
// "since" time while its health does not change.
func RegisterComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()

	prev, ok := components.components[name]
	since := time.Now()
	if ok && prev.healthy == healthy {
		since = prev.since
	}
	components.components[name] = componentState{healthy: healthy, message: message, since: since}
}

// UpdateComponent is RegisterComponent for a component already known
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth aggregates the registry. A failing critical component makes it
// unhealthy; any other failing component makes it degraded.
func GetHealth() Health {
	components.mu.RLock()
	defer components.mu.RUnlock()

	h := Health{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(components.components)),
		Version:    components.version,
		Uptime:     time.Since(components.started).Round(time.Second).String(),
	}

	for name, c := range components.components {
		if c.healthy {
			h.Components[name] = StatusHealthy
			continue
		}
		h.Components[name] = StatusUnhealthy + ": " + c.message
		if critical[name] {
			h.Status = StatusUnhealthy
			continue
		}
		h.Degraded = append(h.Degraded, name)
		if h.Status == StatusHealthy {
			h.Status = StatusDegraded
		}
	}
	sort.Strings(h.Degraded)
	return h
}

// HealthHandler serves GetHealth; only an unhealthy status answers 503
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := GetHealth()
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(h)
	}
}

// LivenessHandler answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(components.started).Round(time.Second).String(),
		})
	}
}
