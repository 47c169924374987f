package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/swaggo/swag"

	_ "github.com/openmohaa/match-server/docs"
)

// Health check endpoint
// @Summary Liveness probe
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
// @Summary Readiness probe
// @Description Pings every configured backing store and reports the persistence backlog
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]bool, len(names))
	allHealthy := true
	for _, name := range names {
		err := h.checks[name](ctx)
		checks[name] = err == nil
		if err != nil {
			allHealthy = false
			h.logger.Warnw("Readiness check failed", "check", name, "error", err)
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	body := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}
	if h.queue != nil {
		body["queueDepth"] = h.queue.QueueDepth()
	}
	h.jsonResponse(w, status, body)
}

// Swagger serves the registered OpenAPI document.
func (h *Handler) Swagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}
