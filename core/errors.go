package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeNotFound    = "NOT_FOUND_ERROR"
	ErrorCodeValidation  = "VALIDATION_ERROR"
	ErrorCodeDuplicate   = "DUPLICATE_ERROR"
	ErrorCodeConflict    = "CONFLICT_ERROR"
	ErrorCodeUpstream    = "UPSTREAM_ERROR"
	ErrorCodeRateLimited = "RATE_LIMITED"
	ErrorCodeInternal    = "INTERNAL_SERVER_ERROR"
)

// UpstreamError is returned by gateways when the host platform rejects a
// call.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "core: upstream operation failed"
	}
	msg := fmt.Sprintf("core: upstream %s failed with status %d", e.Operation, e.StatusCode)
	if strings.TrimSpace(e.Message) != "" {
		msg += ": " + strings.TrimSpace(e.Message)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientSide reports whether the upstream rejected the call for a reason the
// caller can fix. Throttling is transient and never client side.
func (e *UpstreamError) ClientSide() bool {
	return e != nil && e.StatusCode >= 400 && e.StatusCode < 500 && !e.Throttled()
}

func (e *UpstreamError) Throttled() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

func UpstreamStatusCode(err error) (int, bool) {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream == nil {
		return 0, false
	}
	return upstream.StatusCode, true
}

// IsConflict reports whether err is a uniqueness conflict raised by the host
// platform or by the local store.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConcurrentModification) {
		return true
	}
	code, ok := UpstreamStatusCode(err)
	if !ok {
		return false
	}
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	var transition *TransitionError
	if errors.As(err, &transition) && transition != nil {
		mapped := wrapServiceError(err, goerrors.CategoryValidation, ErrorCodeValidation, http.StatusUnprocessableEntity)
		mapped.WithMetadata(map[string]any{
			"current_status": string(transition.Current),
			"target_status":  string(transition.Target),
			"role":           string(transition.Role),
		})
		return mapped
	}

	if errors.Is(err, ErrBootstrapIncomplete) {
		return wrapServiceError(err, goerrors.CategoryExternal, ErrorCodeUpstream, http.StatusBadGateway)
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream != nil {
		category := goerrors.CategoryExternal
		code := http.StatusBadGateway
		if upstream.ClientSide() {
			category = goerrors.CategoryOperation
			code = http.StatusUnprocessableEntity
		}
		textCode := ErrorCodeUpstream
		switch {
		case upstream.StatusCode == http.StatusNotFound:
			category = goerrors.CategoryNotFound
			code = http.StatusNotFound
		case upstream.Throttled():
			category = goerrors.CategoryRateLimit
			code = http.StatusServiceUnavailable
			textCode = ErrorCodeRateLimited
		}
		mapped := wrapServiceError(err, category, textCode, code)
		mapped.WithMetadata(map[string]any{
			"upstream_operation": upstream.Operation,
			"upstream_status":    upstream.StatusCode,
		})
		return mapped
	}

	switch {
	case errors.Is(err, ErrDuplicateTransaction):
		return wrapServiceError(err, goerrors.CategoryConflict, ErrorCodeDuplicate, http.StatusConflict)
	case errors.Is(err, ErrConcurrentModification):
		return wrapServiceError(err, goerrors.CategoryConflict, ErrorCodeConflict, http.StatusConflict)
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrNotFound):
		return wrapServiceError(err, goerrors.CategoryNotFound, ErrorCodeNotFound, http.StatusNotFound)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidTransition):
		return wrapServiceError(err, goerrors.CategoryValidation, ErrorCodeValidation, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInvalidRole):
		return wrapServiceError(err, goerrors.CategoryBadInput, ErrorCodeValidation, http.StatusBadRequest)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorCodeNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorCodeValidation)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if mapped != nil && mapped.Category == goerrors.CategoryInternal {
		mapped.TextCode = ErrorCodeInternal
	}
	return ensureServiceErrorEnvelope(mapped)
}

func wrapServiceError(source error, category goerrors.Category, textCode string, code int) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithCode(code).
			WithTextCode(textCode),
	)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeValidation
	case goerrors.CategoryNotFound:
		return ErrorCodeNotFound
	case goerrors.CategoryConflict:
		return ErrorCodeConflict
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return ErrorCodeUpstream
	case goerrors.CategoryRateLimit:
		return ErrorCodeRateLimited
	default:
		return ErrorCodeInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryRateLimit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHTTPStatus maps any error into the status code its envelope carries.
func ErrorHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := serviceErrorMapper(err)
	if mapped == nil || mapped.Code == 0 {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

// ErrorEnvelope maps err into the go-errors envelope used on the wire.
func ErrorEnvelope(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
