package http

import "net/http"

// HandleReady is the readiness probe. It returns 503 while the process is
// draining so the upstream load balancer stops routing new orders here
// before the listener closes.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.shuttingDown.Load() {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if err := h.health.Ping(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleLive is the liveness probe. The process is live as long as it can
// serve this request; dependency health is the readiness probe's job.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	if h.shuttingDown.Load() {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// MarkShutdown flips the readiness and liveness probes to 503. Call it
// before draining the HTTP server.
func (h *Handler) MarkShutdown() {
	h.shuttingDown.Store(true)
}
