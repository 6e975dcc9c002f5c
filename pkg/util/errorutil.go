package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewConfigurationError marks tenant configuration that cannot be acted on:
// malformed rule documents, calendars with no usable windows, missing SLA
// targets. The affected rule or ticket is flagged; processing continues for
// everything else.
func NewConfigurationError(message string, details map[string]any) error {
	return NewDomainError("CONFIGURATION_ERROR", message, http.StatusUnprocessableEntity, details)
}

// NewCrossTenantReference rejects an entity reference that resolves outside
// the caller's tenant scope.
func NewCrossTenantReference(resource string, details map[string]any) error {
	return NewDomainError("CROSS_TENANT_REFERENCE",
		fmt.Sprintf("%s belongs to another tenant", resource),
		http.StatusForbidden, details)
}

// NewConcurrencyConflict reports an optimistic version mismatch. Callers
// retry locally; this never reaches a user.
func NewConcurrencyConflict(resource string, details map[string]any) error {
	return NewDomainError("CONCURRENCY_CONFLICT",
		fmt.Sprintf("%s was modified concurrently", resource),
		http.StatusConflict, details)
}

// NewRecursionLimitExceeded marks an automation chain that hit the depth bound.
func NewRecursionLimitExceeded(details map[string]any) error {
	return NewDomainError("RECURSION_LIMIT_EXCEEDED",
		"automation chain depth limit exceeded",
		http.StatusUnprocessableEntity, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsConfigurationError reports whether err carries the configuration taxonomy code.
func IsConfigurationError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "CONFIGURATION_ERROR"
}

// IsConcurrencyConflict reports whether err is an optimistic locking failure.
func IsConcurrencyConflict(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "CONCURRENCY_CONFLICT"
}

// IsCrossTenantReference reports whether err is a tenant isolation violation.
func IsCrossTenantReference(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "CROSS_TENANT_REFERENCE"
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
