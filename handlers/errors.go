package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeOTPInvalid   ErrorCode = "OTP_INVALID"
	ErrCodeOTPExpired   ErrorCode = "OTP_EXPIRED"

	// Validation errors
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidPhone     ErrorCode = "INVALID_PHONE"
	ErrCodeInvalidFilename  ErrorCode = "INVALID_FILENAME"
	ErrCodeMissingParameter ErrorCode = "MISSING_PARAMETER"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"

	// Share errors
	ErrCodeShareNotFound ErrorCode = "SHARE_NOT_FOUND"
	ErrCodeShareExpired  ErrorCode = "SHARE_EXPIRED"

	// Storage errors
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeFileTooLarge  ErrorCode = "FILE_TOO_LARGE"

	// Server errors
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeTokenExpired,
		ErrCodeOTPInvalid, ErrCodeOTPExpired:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeInvalidPhone, ErrCodeInvalidFilename,
		ErrCodeMissingParameter:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeShareNotFound:
		return http.StatusNotFound
	case ErrCodeShareExpired:
		// Expired is distinguishable from never-existed on purpose.
		return http.StatusGone
	case ErrCodeAlreadyExists, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeQuotaExceeded, ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInternal, ErrCodeDatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondError sends a standardized error response
func RespondError(c echo.Context, err *APIError) error {
	return c.JSON(err.HTTPStatus(), map[string]interface{}{
		"error":   err.Message,
		"code":    err.Code,
		"details": err.Details,
	})
}

// Common error constructors for convenience

// ErrUnauthorized returns an unauthorized error
func ErrUnauthorized(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return NewAPIError(ErrCodeUnauthorized, message)
}

// ErrForbidden returns a forbidden error
func ErrForbidden(message string) *APIError {
	if message == "" {
		message = "Access denied"
	}
	return NewAPIError(ErrCodeForbidden, message)
}

// ErrNotFound returns a not found error
func ErrNotFound(resource string) *APIError {
	message := "Resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return NewAPIError(ErrCodeNotFound, message)
}

// ErrBadRequest returns a bad request error
func ErrBadRequest(message string) *APIError {
	if message == "" {
		message = "Invalid request"
	}
	return NewAPIError(ErrCodeBadRequest, message)
}

// ErrShareNotFound returns the public share-miss error.
// Revoked and never-existed tokens collapse into this one code.
func ErrShareNotFound() *APIError {
	return NewAPIError(ErrCodeShareNotFound, "Share not found")
}

// ErrShareExpired returns the public share-expired error
func ErrShareExpired() *APIError {
	return NewAPIError(ErrCodeShareExpired, "Share has expired")
}

// ErrQuotaExceeded returns a quota exceeded error
func ErrQuotaExceeded(quota, used, requested int64) *APIError {
	return NewAPIError(ErrCodeQuotaExceeded, "Storage quota exceeded").WithDetails(map[string]int64{
		"quota":     quota,
		"used":      used,
		"requested": requested,
	})
}

// ErrAlreadyExists returns an already exists error
func ErrAlreadyExists(resource string) *APIError {
	message := "Resource already exists"
	if resource != "" {
		message = fmt.Sprintf("%s already exists", resource)
	}
	return NewAPIError(ErrCodeAlreadyExists, message)
}

// ErrInternal returns an internal server error
func ErrInternal(message string) *APIError {
	if message == "" {
		message = "Internal server error"
	}
	return NewAPIError(ErrCodeInternal, message)
}

// ErrMissingParameter returns a missing parameter error
func ErrMissingParameter(param string) *APIError {
	return NewAPIError(ErrCodeMissingParameter, fmt.Sprintf("Missing required parameter: %s", param))
}

// GetClaims extracts JWT claims from the context
// Returns nil if no claims are present
func GetClaims(c echo.Context) *JWTClaims {
	claims, ok := c.Get("user").(*JWTClaims)
	if !ok || claims == nil {
		return nil
	}
	return claims
}

// RequireClaims extracts JWT claims and returns an error if not authenticated
func RequireClaims(c echo.Context) (*JWTClaims, error) {
	claims := GetClaims(c)
	if claims == nil {
		return nil, RespondError(c, ErrUnauthorized(""))
	}
	return claims, nil
}
