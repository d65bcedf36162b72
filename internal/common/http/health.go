package http

import (
	"context"
	"net/http"
	"time"
)

type HealthCheck func(ctx context.Context) error

// HealthHandler reports 503 when any named check fails.
func HealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = "unavailable"
				continue
			}
			result[name] = "ok"
		}
		WriteJSON(w, status, result)
	}
}
