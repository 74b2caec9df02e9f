package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// jsonErrorCode adds a machine-readable code so clients can tell a sold-out
// day apart from a backend failure without parsing prose.
func jsonErrorCode(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// parseDay parses a calendar-date query or body value.
func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
