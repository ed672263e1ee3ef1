package www

import (
	"encoding/json"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("www: encode response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// controlResult is the robot-control outcome envelope. Control endpoints
// report refusals as data at HTTP 200; only auth failures use transport
// status codes.
type controlResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func controlOK(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, controlResult{Status: "success", Message: msg})
}

func controlError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, controlResult{Status: "error", Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
