package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Validation errors
	ErrCodeInvalidProxyConfig ErrorCode = "INVALID_PROXY_CONFIG"

	// Pool errors
	ErrCodeProxyNotFound    ErrorCode = "PROXY_NOT_FOUND"
	ErrCodeProxyExists      ErrorCode = "PROXY_ALREADY_EXISTS"
	ErrCodeNoAvailableProxy ErrorCode = "NO_AVAILABLE_PROXY"
	ErrCodeSelectionFailed  ErrorCode = "SELECTION_FAILED"

	// Health errors
	ErrCodeHealthCheckFailed ErrorCode = "HEALTH_CHECK_FAILED"
	ErrCodeProxyQuarantined  ErrorCode = "PROXY_QUARANTINED"
	ErrCodeCapacityExhausted ErrorCode = "PROXY_CAPACITY_EXHAUSTED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeRepository    ErrorCode = "REPOSITORY_ERROR"
)

// ProxyPoolError represents a structured error with context
type ProxyPoolError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *ProxyPoolError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *ProxyPoolError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *ProxyPoolError) Is(target error) bool {
	if t, ok := target.(*ProxyPoolError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *ProxyPoolError) WithMetadata(key string, value interface{}) *ProxyPoolError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsRetryable returns true if the error might be resolved by retrying
// with a different proxy or a widened filter.
func (e *ProxyPoolError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNoAvailableProxy, ErrCodeProxyQuarantined, ErrCodeCapacityExhausted:
		return true
	default:
		return false
	}
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *ProxyPoolError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidProxyConfig:
		return 400
	case ErrCodeProxyNotFound:
		return 404
	case ErrCodeProxyExists:
		return 409
	case ErrCodeNoAvailableProxy, ErrCodeProxyQuarantined, ErrCodeCapacityExhausted:
		return 503
	default:
		return 500
	}
}

// NewError creates a new ProxyPoolError
func NewError(code ErrorCode, component, message string) *ProxyPoolError {
	return &ProxyPoolError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with ProxyPoolError structure
func WrapError(err error, code ErrorCode, component, message string) *ProxyPoolError {
	if err == nil {
		return nil
	}
	return &ProxyPoolError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// Common error constructors for frequently used errors

// NewInvalidConfigError creates a validation error for proxy configuration
func NewInvalidConfigError(reason string) *ProxyPoolError {
	return NewError(ErrCodeInvalidProxyConfig, "proxy", reason)
}

// NewProxyNotFoundError creates an error for a missing proxy
func NewProxyNotFoundError(proxyID string) *ProxyPoolError {
	return NewError(
		ErrCodeProxyNotFound,
		"repository",
		fmt.Sprintf("proxy %s not found", proxyID),
	).WithMetadata("proxy_id", proxyID)
}

// NewNoAvailableProxyError creates an error when no candidate survives filtering
func NewNoAvailableProxyError() *ProxyPoolError {
	return NewError(
		ErrCodeNoAvailableProxy,
		"selection",
		"no proxy available matching the requested criteria",
	)
}

// NewSelectionError creates an error for an algorithm-internal fault
func NewSelectionError(strategy string, cause error) *ProxyPoolError {
	return WrapError(
		cause,
		ErrCodeSelectionFailed,
		"selection",
		fmt.Sprintf("selection algorithm '%s' failed", strategy),
	).WithMetadata("strategy", strategy)
}

// NewQuarantineError creates an error for acquiring an unavailable proxy
func NewQuarantineError(proxyID string) *ProxyPoolError {
	return NewError(
		ErrCodeProxyQuarantined,
		"proxy",
		fmt.Sprintf("proxy %s is quarantined or unhealthy", proxyID),
	).WithMetadata("proxy_id", proxyID)
}

// NewCapacityError creates an error for an over-capacity proxy
func NewCapacityError(proxyID string, maxConcurrent int) *ProxyPoolError {
	return NewError(
		ErrCodeCapacityExhausted,
		"proxy",
		fmt.Sprintf("proxy %s is at its concurrency limit (%d)", proxyID, maxConcurrent),
	).WithMetadata("proxy_id", proxyID).WithMetadata("max_concurrent", maxConcurrent)
}

// NewHealthCheckError creates an error for a failed health probe
func NewHealthCheckError(proxyID string, cause error) *ProxyPoolError {
	return WrapError(
		cause,
		ErrCodeHealthCheckFailed,
		"health_check",
		fmt.Sprintf("health check failed for proxy %s", proxyID),
	).WithMetadata("proxy_id", proxyID)
}

// IsProxyPoolError checks if an error is a ProxyPoolError
func IsProxyPoolError(err error) bool {
	var ppErr *ProxyPoolError
	return errors.As(err, &ppErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var ppErr *ProxyPoolError
	if errors.As(err, &ppErr) {
		return ppErr.Code
	}
	return ErrCodeInternalError
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var ppErr *ProxyPoolError
	if errors.As(err, &ppErr) {
		return ppErr.IsRetryable()
	}
	return false
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var ppErr *ProxyPoolError
	if errors.As(err, &ppErr) {
		return ppErr.HTTPStatusCode()
	}
	return 500
}
