package utils

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON body of every response the gateway produces itself.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes a failure envelope. kind and stack are omitted when empty.
func WriteError(w http.ResponseWriter, status int, kind, message, stack string) {
	_ = WriteJSON(w, status, Envelope{
		Success: false,
		Message: message,
		Error:   kind,
		Stack:   stack,
	})
}
