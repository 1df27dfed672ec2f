package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON error envelope. Gateway rejections carry only the
// message that the login page would otherwise show; API failures add a
// machine-readable code.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusInternalServerError: "internal_error",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes an API failure with the code for status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: errorCodes[status]})
}

// writeText is used where the caller negotiated no JSON, such as
// disallowed routes and refused WebSocket upgrades.
func writeText(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	w.Write([]byte(body))
}
