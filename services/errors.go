package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/upb/coursehub/api"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Not Found Errors
	ErrCourseNotFound = NewDomainError(ErrorTypeNotFound, "course not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "sign in required", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrNotOwner  = NewDomainError(ErrorTypeForbidden, "you are not the instructor of this course", nil)

	// Conflict Errors
	ErrAlreadyEnrolled = NewDomainError(ErrorTypeConflict, "already enrolled in this course", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	// External Service Errors
	ErrCourseServiceUnavailable = NewDomainError(ErrorTypeExternal, "course service unavailable", nil)
	ErrCourseServiceError       = NewDomainError(ErrorTypeExternal, "course service error", nil)
	ErrImageUploadFailed        = NewDomainError(ErrorTypeExternal, "failed to upload image", nil)
)

// FromAPIError classifies an error returned by the api package. Domain errors
// pass through unchanged.
func FromAPIError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch {
	case errors.Is(err, api.ErrNotImage), errors.Is(err, api.ErrImageTooLarge):
		return NewDomainError(ErrorTypeValidation, err.Error(), err)
	case errors.Is(err, api.ErrImageUpload):
		return NewDomainError(ErrorTypeExternal, ErrImageUploadFailed.Message, err)
	case errors.Is(err, api.ErrUnavailable):
		return NewDomainError(ErrorTypeExternal, ErrCourseServiceUnavailable.Message, err)
	}

	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		return NewDomainError(ErrorTypeInternal, ErrInternal.Message, err)
	}

	message := statusErr.Message
	switch statusErr.StatusCode {
	case http.StatusNotFound:
		if message == "" {
			message = "resource not found"
		}
		return NewDomainError(ErrorTypeNotFound, message, err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if message == "" {
			message = ErrInvalidInput.Message
		}
		return NewDomainError(ErrorTypeValidation, message, err)
	case http.StatusUnauthorized:
		return NewDomainError(ErrorTypeUnauthorized, ErrUnauthorized.Message, err)
	case http.StatusForbidden:
		return NewDomainError(ErrorTypeForbidden, ErrForbidden.Message, err)
	case http.StatusConflict:
		if message == "" {
			message = "resource already exists"
		}
		return NewDomainError(ErrorTypeConflict, message, err)
	default:
		return NewDomainError(ErrorTypeExternal, ErrCourseServiceError.Message, err).
			WithDetail("upstream_status", statusErr.StatusCode)
	}
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is an external service error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
