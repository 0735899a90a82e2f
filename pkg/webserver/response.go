package webserver

import (
	"encoding/json"
	"net/http"
)

// opResult is the error shape every debug/mutating route returns on
// failure: `{"operation": <string>, "success": <bool>}`.
type opResult struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusOK, v)
}

// writeFail renders the standard failure envelope and a 400 status.
func writeFail(w http.ResponseWriter, operation string, err error) {
	writeJSON(w, http.StatusBadRequest, opResult{Operation: operation, Success: false, Error: err.Error()})
}

func writeSuccess(w http.ResponseWriter, operation string) {
	writeJSON(w, http.StatusOK, opResult{Operation: operation, Success: true})
}
