package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// Challenge describes a pending login code.
type Challenge struct {
	PhoneNumber string
	ExpiresAt   time.Time
	// DevCode is only populated when the server runs in development
	// mode and echoes the code instead of sending it out of band.
	DevCode string
}

// Authenticator drives the phone-code login flow. Input validation
// happens before any network traffic so malformed numbers never leave
// the process.
type Authenticator struct {
	client *Client
}

// NewAuthenticator creates an authenticator over an API client
func NewAuthenticator(client *Client) *Authenticator {
	return &Authenticator{client: client}
}

type otpRequestPayload struct {
	PhoneNumber string `json:"phoneNumber"`
}

type otpRequestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	OTP       string `json:"otp,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type otpVerifyPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

type otpVerifyResponse struct {
	Token       string `json:"token"`
	PhoneNumber string `json:"phoneNumber"`
}

// RequestCode asks the server to issue a login code for a phone
// number. Requesting again for the same number invalidates the
// previous code.
func (a *Authenticator) RequestCode(ctx context.Context, phoneNumber string) (*Challenge, error) {
	if !phonePattern.MatchString(phoneNumber) {
		return nil, fmt.Errorf("%w: phone number %q is not in international format", ErrInvalidInput, phoneNumber)
	}

	var resp otpRequestResponse
	err := a.client.doJSON(ctx, http.MethodPost, "/api/auth/request-otp", otpRequestPayload{PhoneNumber: phoneNumber}, &resp)
	if err != nil {
		return nil, err
	}

	challenge := &Challenge{
		PhoneNumber: phoneNumber,
		DevCode:     resp.OTP,
	}
	if resp.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			challenge.ExpiresAt = t
		}
	}
	return challenge, nil
}

// ResendCode reissues the challenge. The previous code stops working.
func (a *Authenticator) ResendCode(ctx context.Context, phoneNumber string) (*Challenge, error) {
	return a.RequestCode(ctx, phoneNumber)
}

// VerifyCode submits the received code. On success the session is
// stored in the credential store and every subscriber sees it.
func (a *Authenticator) VerifyCode(ctx context.Context, phoneNumber, code string) (Session, error) {
	if !phonePattern.MatchString(phoneNumber) {
		return Session{}, fmt.Errorf("%w: phone number %q is not in international format", ErrInvalidInput, phoneNumber)
	}
	if !codePattern.MatchString(code) {
		return Session{}, fmt.Errorf("%w: code must be exactly 6 digits", ErrInvalidInput)
	}

	var resp otpVerifyResponse
	err := a.client.doJSON(ctx, http.MethodPost, "/api/auth/verify-otp", otpVerifyPayload{
		PhoneNumber: phoneNumber,
		OTP:         code,
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Session{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return Session{}, err
	}

	session := Session{Token: resp.Token, PhoneNumber: resp.PhoneNumber}
	a.client.Credentials().Set(session)
	return session, nil
}

// Logout drops the local session. The server keeps no session state
// beyond the token's own expiry.
func (a *Authenticator) Logout() {
	a.client.Credentials().Clear()
}
