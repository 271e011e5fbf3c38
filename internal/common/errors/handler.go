// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler writes StandardErrors as JSON HTTP responses.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

type errorBody struct {
	Error *StandardError `json:"error"`
}

// WriteHTTP normalizes err, logs it and writes the JSON error body.
func (h *ErrorHandler) WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"status":        status,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if r != nil {
		fields["method"] = r.Method
		fields["path"] = r.URL.Path
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
	} else {
		h.logger.Warn("request rejected", fields)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: stdErr})
}
