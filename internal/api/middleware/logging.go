package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseMeta records the status and body size a handler produced so
// the access log can report them.
type responseMeta struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (m *responseMeta) WriteHeader(code int) {
	if !m.written {
		m.status = code
		m.written = true
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeta) Write(p []byte) (int, error) {
	if !m.written {
		m.status = http.StatusOK
		m.written = true
	}
	n, err := m.ResponseWriter.Write(p)
	m.bytes += n
	return n, err
}

// Logger emits one structured access log line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meta := &responseMeta{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(meta, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", meta.status,
			"bytes", meta.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}
