package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope every error response uses. Stack is only filled
// outside production.
type ErrorBody struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// MessageBody is the envelope for responses that only carry a message.
type MessageBody struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Message: message})
}

// WriteErrorStack is WriteError with diagnostic detail attached.
func WriteErrorStack(w http.ResponseWriter, status int, message, stack string) {
	WriteJSON(w, status, ErrorBody{Message: message, Stack: stack})
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, MessageBody{Message: message})
}
