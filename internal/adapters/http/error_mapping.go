package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNoInput), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAllBackendsFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string                  `json:"error"`
	RequestID string                  `json:"request_id,omitempty"`
	Failures  []domain.BackendFailure `json:"failures,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: requestIDFromContext(r.Context()),
	}
	var exhausted *domain.AllBackendsFailedError
	if errors.As(err, &exhausted) {
		resp.Failures = exhausted.Failures
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}
