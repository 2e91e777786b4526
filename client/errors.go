// Package client is a Go SDK for the SkyCrate API. It covers the
// phone-code login flow, folder navigation, uploads and downloads,
// share link management, and preview classification.
package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for API status classification.
// Use errors.Is(err, client.ErrShareExpired) to check.
var (
	ErrInvalidInput  = errors.New("skycrate: invalid input")
	ErrUnauthorized  = errors.New("skycrate: unauthorized")
	ErrForbidden     = errors.New("skycrate: forbidden")
	ErrNotFound      = errors.New("skycrate: not found")
	ErrConflict      = errors.New("skycrate: conflict")
	ErrShareExpired  = errors.New("skycrate: share link expired")
	ErrQuotaExceeded = errors.New("skycrate: storage quota exceeded")
	ErrThrottled     = errors.New("skycrate: too many requests")
	ErrServerError   = errors.New("skycrate: server error")
)

// Operation-level sentinels. These wrap the status sentinels above so
// callers can match either layer: errors.Is(err, ErrShareNotFound) and
// errors.Is(err, ErrNotFound) both hold for an unknown link token.
var (
	ErrAuthenticationFailed = errors.New("skycrate: authentication failed")
	ErrContentLoadFailed    = errors.New("skycrate: content load failed")
	ErrShareCreationFailed  = errors.New("skycrate: share creation failed")
	ErrShareNotFound        = errors.New("skycrate: share link not found")
)

// APIError wraps a sentinel error with the HTTP status code and the
// server's machine-readable error code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("skycrate: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("skycrate: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrInvalidInput
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrShareExpired
	case http.StatusRequestEntityTooLarge:
		return ErrQuotaExceeded
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		return nil
	}
}
