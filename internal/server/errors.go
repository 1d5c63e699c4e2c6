package server

import (
	"errors"
	"net/http"

	"github.com/allyant/audit-reporter/internal/markdown"
	"github.com/allyant/audit-reporter/internal/report"
	"github.com/allyant/audit-reporter/internal/store"
)

// ErrMissingGPTResponse indicates document creation was requested before
// any model response was stored.
type ErrMissingGPTResponse struct{}

func (e *ErrMissingGPTResponse) Error() string {
	return "gptResponse is missing"
}

// ErrNoValidRows indicates an uploaded CSV contained no usable rows.
type ErrNoValidRows struct{}

func (e *ErrNoValidRows) Error() string {
	return "no valid data found in CSV"
}

// HTTPStatus returns the appropriate HTTP status code for an error.
// Transport and rendering failures map to 500 with a generic message;
// their detail is only logged server-side.
func HTTPStatus(err error) int {
	var shapeErr *markdown.UnexpectedShapeError
	var conflictErr *store.VersionConflictError

	switch {
	case errors.Is(err, report.ErrThrottled):
		return http.StatusServiceUnavailable
	case errors.As(err, &shapeErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusBadRequest
	default:
		var missing *ErrMissingGPTResponse
		var noRows *ErrNoValidRows
		if errors.As(err, &missing) || errors.As(err, &noRows) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
