package http

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fixora/dashboard/internal/domain"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Code    string      `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}

func success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, Envelope{Status: true, Message: message, Data: data})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Message: message, Code: string(domain.ErrCodeInvalidRequest)})
}

// writeError maps err to its status code and error code
func writeError(w http.ResponseWriter, err error) {
	appErr := domain.AsAppError(err)
	writeJSON(w, domain.GetHTTPStatusCode(appErr), Envelope{
		Message: appErr.Message,
		Data:    appErr,
		Code:    string(appErr.Code),
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
