package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes for different categories
const (
	// Transport Errors (1xxx)
	ErrCodeNetwork     ErrorCode = "FETCH_1001"
	ErrCodeTimeout     ErrorCode = "FETCH_1002"
	ErrCodeCircuitOpen ErrorCode = "FETCH_1003"

	// Backend HTTP Errors (2xxx)
	ErrCodeBackendAuth   ErrorCode = "HTTP_2001"
	ErrCodeBackendServer ErrorCode = "HTTP_2002"
	ErrCodeBackendClient ErrorCode = "HTTP_2003"

	// Payload Errors (3xxx)
	ErrCodeMalformedPayload ErrorCode = "PAYLOAD_3001"
	ErrCodeUnknownShape     ErrorCode = "PAYLOAD_3002"
	ErrCodeBackendFailure   ErrorCode = "PAYLOAD_3003"

	// Request Errors (4xxx)
	ErrCodeInvalidRequest  ErrorCode = "REQ_4001"
	ErrCodeSessionNotFound ErrorCode = "REQ_4002"
	ErrCodeSessionClosed   ErrorCode = "REQ_4003"

	// Server Errors (6xxx)
	ErrCodeInternalServerError ErrorCode = "SERVER_6001"
	ErrCodeConfigurationError  ErrorCode = "SERVER_6003"
)

// Category groups error codes for display. It never changes control flow.
type Category string

const (
	CategoryNetwork   Category = "network"
	CategoryTimeout   Category = "timeout"
	CategoryAuth      Category = "auth"
	CategoryServer    Category = "server"
	CategoryClient    Category = "client"
	CategoryMalformed Category = "malformed"
	CategoryRequest   Category = "request"
	CategoryInternal  Category = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Category returns the display category of the error
func (e *AppError) Category() Category {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeCircuitOpen:
		return CategoryNetwork
	case ErrCodeTimeout:
		return CategoryTimeout
	case ErrCodeBackendAuth:
		return CategoryAuth
	case ErrCodeBackendServer, ErrCodeBackendFailure:
		return CategoryServer
	case ErrCodeBackendClient:
		return CategoryClient
	case ErrCodeMalformedPayload, ErrCodeUnknownShape:
		return CategoryMalformed
	case ErrCodeInvalidRequest, ErrCodeSessionNotFound, ErrCodeSessionClosed:
		return CategoryRequest
	default:
		return CategoryInternal
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Transport errors
func ErrNetwork(details string, cause error) *AppError {
	return NewAppError(ErrCodeNetwork, "connection/timeout: backend unreachable", details, cause)
}

func ErrTimeout(timeout string, cause error) *AppError {
	return NewAppError(ErrCodeTimeout, "connection/timeout: backend did not answer in time", fmt.Sprintf("Timeout: %s", timeout), cause)
}

func ErrCircuitOpen(cause error) *AppError {
	return NewAppError(ErrCodeCircuitOpen, "connection/timeout: backend temporarily unavailable", "circuit breaker open", cause)
}

// ErrHTTPStatus classifies a non-2xx backend status
func ErrHTTPStatus(status int, details string) *AppError {
	var e *AppError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewAppError(ErrCodeBackendAuth, fmt.Sprintf("authentication failed (HTTP %d)", status), details, nil)
	case status >= 500:
		e = NewAppError(ErrCodeBackendServer, fmt.Sprintf("server error (HTTP %d)", status), details, nil)
	default:
		e = NewAppError(ErrCodeBackendClient, fmt.Sprintf("request rejected (HTTP %d)", status), details, nil)
	}
	e.StatusCode = status
	return e
}

// Payload errors
func ErrMalformedPayload(details string, cause error) *AppError {
	return NewAppError(ErrCodeMalformedPayload, "invalid response", details, cause)
}

func ErrUnknownShape(details string) *AppError {
	return NewAppError(ErrCodeUnknownShape, "invalid response", details, nil)
}

func ErrBackendFailure(details string) *AppError {
	return NewAppError(ErrCodeBackendFailure, "backend reported a failure", details, nil)
}

// Request errors
func ErrInvalidRequest(details string, cause error) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Invalid request", details, cause)
}

func ErrSessionNotFound(sessionID string) *AppError {
	return NewAppError(ErrCodeSessionNotFound, "Dashboard session not found", fmt.Sprintf("Session ID: %s", sessionID), nil)
}

func ErrSessionClosed(sessionID string) *AppError {
	return NewAppError(ErrCodeSessionClosed, "Dashboard session is closed", fmt.Sprintf("Session ID: %s", sessionID), nil)
}

// Server errors
func ErrInternalServerError(details string, cause error) *AppError {
	return NewAppError(ErrCodeInternalServerError, "Internal server error", details, cause)
}

func ErrConfigurationError(config string) *AppError {
	return NewAppError(ErrCodeConfigurationError, "Configuration error", fmt.Sprintf("Config: %s", config), nil)
}

// AsAppError extracts an AppError from err, wrapping unknown errors as internal errors
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return ErrInvalidRequest(domErr.Message, err)
	}
	return ErrInternalServerError(err.Error(), err)
}

// IsCanceled reports whether err is a cancellation. Cancellations are not failures.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// GetHTTPStatusCode maps an error to the status served by this service's own API
func GetHTTPStatusCode(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		var domErr *DomainError
		if errors.As(err, &domErr) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeSessionClosed:
		return http.StatusGone
	case ErrCodeNetwork, ErrCodeCircuitOpen, ErrCodeBackendServer, ErrCodeBackendFailure:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeBackendAuth, ErrCodeBackendClient, ErrCodeMalformedPayload, ErrCodeUnknownShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
