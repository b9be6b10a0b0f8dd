package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// PaginationMeta echoes the effective page bounds. Count is the total number
// of matching records, not the length of Data.
type PaginationMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Message writes data alongside a human-readable message.
func Message(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Message: message})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, message string, details []string) {
	writeJSON(w, status, errorEnvelope{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
