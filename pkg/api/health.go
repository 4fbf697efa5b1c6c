package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/wharf/pkg/metrics"
)

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// readyHandler implements the /ready endpoint. Storage is probed on every
// call; the result also feeds the component registry behind /health.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	if s.store == nil {
		checks["storage"] = "not initialized"
		ready = false
		message = "Storage not initialized"
	} else if _, err := s.store.ListClusters(); err != nil {
		checks["storage"] = fmt.Sprintf("error: %v", err)
		ready = false
		message = "Storage not accessible"
		metrics.UpdateComponent(metrics.ComponentStorage, false, err.Error())
	} else {
		checks["storage"] = "ok"
		metrics.UpdateComponent(metrics.ComponentStorage, true, "")
	}

	if s.broker == nil {
		checks["events"] = "disabled"
	} else {
		checks["events"] = fmt.Sprintf("ok (%d subscribers)", s.broker.SubscriberCount())
	}

	checks["rollouts"] = fmt.Sprintf("%d running", s.locks.count())

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}
