// Package healthprobe serves the liveness and readiness probes mounted on
// the admin HTTP surface.
package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker reports process liveness and readiness. Readiness flips on
// once startup wiring completes and off again when shutdown begins, so a
// load balancer stops routing before the engine stops serving.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
}

func New() *HealthChecker {
	return &HealthChecker{startTime: time.Now()}
}

// SetReady flips the readiness flag.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

type probeResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime,omitempty"`
	Message string `json:"message,omitempty"`
}

// Health reports 200 for as long as the process is up.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready reports 200 once the engine is serving and 503 otherwise.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{
				Status:  "not_ready",
				Message: "engine is starting",
			})
			return
		}
		writeProbe(w, http.StatusOK, probeResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

func writeProbe(w http.ResponseWriter, code int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
