package web

// errors.go turns handler failures into responses.
//
// Technical errors are logged with the request ID; clients get the mapped
// core.UserMessage, as JSON on /api routes and plain text elsewhere.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError logs err and writes the user-facing message.
// A zero statusCode is derived from the mapped error code.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	if statusCode == 0 {
		statusCode = statusFor(userMsg.Code)
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:  msg.Message,
		Action: msg.Action,
		Code:   msg.Code,
	})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "RUN001":
		return http.StatusServiceUnavailable
	case "RUN002":
		return http.StatusRequestTimeout
	case "RUN005":
		return http.StatusConflict
	case "SRC001":
		return http.StatusUnsupportedMediaType
	case "SRC005":
		return http.StatusRequestEntityTooLarge
	case "SRC002", "SRC003", "SRC004":
		return http.StatusUnprocessableEntity
	case "SNK001", "SNK002":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
