package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-dcb/core"
	goerrors "github.com/goliatone/go-errors"
)

func apiError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(core.ErrorCodeValidation)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func apiWrapError(source error, category goerrors.Category, message string, code int) error {
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(core.ErrorCodeValidation)
}

func apiValidationError(field string, message string) error {
	return goerrors.NewValidation("invalid request", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).WithCode(http.StatusBadRequest).WithTextCode(core.ErrorCodeValidation)
}

// writeError renders err as a go-errors response envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	envelope := core.ErrorEnvelope(err)
	if envelope == nil {
		envelope = goerrors.New("internal server error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ErrorCodeInternal)
	}
	status := envelope.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		envelope.WithRequestID(requestID)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("dcb api request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(w, status, envelope.ToErrorResponse(false, nil))
}
