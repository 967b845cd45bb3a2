package handlers

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the wire shape every non-2xx response carries: a stable
// machine-readable code and a human-readable message.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes the error envelope with the given status. Callers map
// domain errors to a status and code first; the message must not leak
// internal detail.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(errorEnvelope{Error: errorCode, Message: message})
}

// WriteJSON writes data as a JSON response. A 200 relies on the implicit
// WriteHeader from the first body write.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
