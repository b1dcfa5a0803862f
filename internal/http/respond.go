package httpx

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response once. A second write attempt on the same
// request is dropped; the response state flag is the only double-send
// guard, there is no method interception anywhere.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	if rs, ok := w.(*responseState); ok && !rs.markSent() {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the error envelope used by the acquisition surface.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Status: "error", Message: msg, Code: status})
}
