package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/columbushq/columbus/internal/api/response"
)

// Recovery converts handler panics into 500 responses instead of
// killing the connection. The stack is logged, never sent to clients.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			slog.Error("panic recovered",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", v,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
