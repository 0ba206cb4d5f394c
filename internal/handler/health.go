package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency the service cannot serve without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type statusResponse struct {
	Status string `json:"status"`
}

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, statusResponse{Status: "ok"})
	}
}

// Readyz reports ready only when every named dependency answers a ping.
func Readyz(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed",
					"dependency", name,
					"error", err)
				respondJSON(w, r, http.StatusServiceUnavailable, statusResponse{Status: name + " unavailable"})
				return
			}
		}

		respondJSON(w, r, http.StatusOK, statusResponse{Status: "ready"})
	}
}
