package kit

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Details    any    `json:"details,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string, details any) {
	body := ErrorResponse{StatusCode: status, Error: msg, Details: details}
	if r != nil {
		body.RequestID = chimw.GetReqID(r.Context())
	}
	WriteJSON(w, status, body)
}

// WriteUnauthorized adds the challenge header expected by bearer clients.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="catalog"`)
	WriteError(w, r, http.StatusUnauthorized, msg, nil)
}
