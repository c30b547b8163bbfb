// Package handler holds the HTTP endpoints of the worker's dashboard API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/columbushq/columbus/internal/api/response"
)

// Pinger is anything with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports the health of the database and Redis.
func NewHealthHandler(db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		healthy := true

		if err := db.Ping(ctx); err != nil {
			status["database"] = "unreachable"
			healthy = false
		}
		if err := redis.Ping(ctx); err != nil {
			status["redis"] = "unreachable"
			healthy = false
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", "A dependency is unreachable", status)
			return
		}
		response.JSON(w, status)
	}
}
