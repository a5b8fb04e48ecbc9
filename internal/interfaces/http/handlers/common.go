// Package handlers implements the /api/v1 HTTP endpoints over barplot.Service.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// maxBodyBytes caps request bodies when the server does not set its own
// limit.
const maxBodyBytes = 1 << 20

// writeJSON encodes before writing the header so an unencodable body turns
// into a 500 instead of a truncated 2xx.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(statusCode)
		return
	}
	body, err := json.Marshal(data)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Code: errors.ErrCodeInternal.String(), Message: "failed to encode response"})
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// OutcomeResponse is returned by every view edit. Rejections carry 422.
type OutcomeResponse struct {
	Accepted bool            `json:"accepted"`
	Reason   taxonomy.Reason `json:"reason"`
	Message  string          `json:"message,omitempty"`
}

func writeOutcome(w http.ResponseWriter, o taxonomy.Outcome) {
	status := http.StatusOK
	if !o.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, OutcomeResponse{Accepted: o.Accepted, Reason: o.Reason, Message: o.Message})
}

func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsValidation(err), errors.IsMalformedPath(err), errors.IsInvalidDepth(err),
		errors.IsCode(err, errors.ErrCodeBadRequest):
		return http.StatusBadRequest
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.IsCode(err, errors.ErrCodeTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError maps application errors to HTTP status codes. Server-side
// failures are logged and their message masked.
func writeAppError(w http.ResponseWriter, log logging.Logger, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Code: errors.GetCode(err).String(), Message: err.Error()}
	var app *errors.AppError
	if errors.As(err, &app) {
		resp.Message = app.Message
		resp.Detail = app.Detail
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error("Request failed", logging.Err(err), logging.String("code", resp.Code))
		resp.Message = "internal server error"
		resp.Detail = ""
		if resp.Code == "" {
			resp.Code = errors.ErrCodeInternal.String()
		}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON document into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body")
	}
	return nil
}
