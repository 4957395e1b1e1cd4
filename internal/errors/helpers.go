package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewNodeDataError creates a validation error for illegal node data
func NewNodeDataError(nodeID, nodeType, message string) *AppError {
	return New(ErrCodeInvalidFlow, message).
		WithContext("node_id", nodeID).
		WithContext("node_type", nodeType).
		WithUserMessage(fmt.Sprintf("Invalid %s node: %s", nodeType, message))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewConflictError creates a conflict error for state mismatches such as
// inactive flows or wrong-channel routing
func NewConflictError(message string) *AppError {
	return New(ErrCodeConflict, message).WithUserMessage(message)
}

// NewSendError creates a typed send failure carrying the outbound builder's
// HTTP status so callers can mirror it at the API boundary
func NewSendError(status int, message string) *AppError {
	return New(ErrCodeSendFailed, message).
		WithContext("status", status).
		WithUserMessage(message)
}

// NewRuntimeGuardError creates an error for executions stopped by a loop or
// step-count guard
func NewRuntimeGuardError(message string) *AppError {
	return New(ErrCodeRuntimeGuard, message).WithUserMessage(message)
}

// SendStatus extracts the HTTP status carried by a send error, defaulting to
// 500 when absent
func SendStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, ok := appErr.Context["status"].(int); ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, ok := appErr.Context["status"].(int); ok && status >= 400 {
			return status
		}
	}

	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeInvalidFlow:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeMetaAPI, ErrCodeSendFailed:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
