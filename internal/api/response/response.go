// Package response standardizes the JSON envelope every endpoint writes.
// Successful responses wrap their payload in {"data": ...}, list
// responses add a "meta" block, and failures carry a single "error"
// object with a stable machine-readable code.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// PaginationMeta describes the page of a collection response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// ErrorBody is the payload of every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, map[string]any{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, map[string]any{"data": data})
}

func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, map[string]any{"data": data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	write(w, http.StatusOK, map[string]any{"data": data, "meta": meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, map[string]any{"error": ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func write(w http.ResponseWriter, status int, body map[string]any) {
	buf, err := json.Marshal(body)
	if err != nil {
		slog.Error("encoding response", "error", err)
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"encoding failure"}}`,
			http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}
