package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandlers struct {
	db      Pinger
	version string
}

// NewHealthHandlers creates health handlers. db may be nil when the
// receiver runs without a database.
func NewHealthHandlers(db Pinger, version string) *HealthHandlers {
	return &HealthHandlers{
		db:      db,
		version: version,
	}
}

var startTime = time.Now()

const readinessTimeout = 2 * time.Second

// Liveness always answers 200 while the process is up. It sits in front of
// signature checks and rate limiting.
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readiness reports whether the downstream store can take writes.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":  "ready",
		"version": h.version,
		"uptime":  time.Since(startTime).Round(time.Second).String(),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			resp["status"] = "not ready"
			resp["reason"] = "database unavailable"
			JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	JSON(w, http.StatusOK, resp)
}
