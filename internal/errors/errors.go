package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	// Frame pool and sync engine
	ErrorTypeResourceExhausted   ErrorType = "RESOURCE_EXHAUSTED"
	ErrorTypeFormatInvalid       ErrorType = "FORMAT_INVALID"
	ErrorTypeInconsistentRelease ErrorType = "INCONSISTENT_RELEASE"
	ErrorTypeCancelled           ErrorType = "CANCELLED"

	// Diagnostics API
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeForbidden   ErrorType = "FORBIDDEN"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeServiceDown ErrorType = "SERVICE_DOWN"
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// NewResourceExhaustedError reports that no frame could be obtained for
// decoding. Fatal to the current decode session.
func NewResourceExhaustedError(message string) *AppError {
	return New(ErrorTypeResourceExhausted, message, http.StatusServiceUnavailable)
}

// NewFormatInvalidError reports a rejected format or geometry.
func NewFormatInvalidError(message string) *AppError {
	return New(ErrorTypeFormatInvalid, message, http.StatusBadRequest)
}

// NewInconsistentReleaseError describes a release of a frame that was not in
// the expected set. Only used for diagnostics.
func NewInconsistentReleaseError(op string, expected, actual string) *AppError {
	return New(ErrorTypeInconsistentRelease,
		fmt.Sprintf("%s: frame in %s, expected %s", op, actual, expected),
		http.StatusConflict).
		WithDetails(map[string]interface{}{"op": op, "expected": expected, "actual": actual})
}

// WrapCancelled reports a blocking operation abandoned because of a
// cancelled context or a pool reset.
func WrapCancelled(err error, message string) *AppError {
	return Wrap(err, ErrorTypeCancelled, message, http.StatusRequestTimeout)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewForbiddenError creates a forbidden error.
func NewForbiddenError(message string) *AppError {
	return New(ErrorTypeForbidden, message, http.StatusForbidden)
}

// NewInternalError creates an internal server error.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// WrapInternalError wraps an error as internal server error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

// NewServiceDownError creates a service down error.
func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s is currently unavailable", service), http.StatusServiceUnavailable)
}

// GetAppError finds the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsAppError reports whether err's chain contains an AppError.
func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// IsType reports whether err's chain contains an AppError of type t.
func IsType(err error, t ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == t
}
