package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON error body for auth endpoints. Stage
// distinguishes which server hop failed so the client can report
// "exchange failed" apart from "profile fetch failed".
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, stage string) {
	writeJSON(w, status, errorResponse{Message: message, Stage: stage})
}
