package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type AuthHandler struct {
	db        *sql.DB
	jwtSecret []byte
	store     *OTPStore
	guard     *OTPGuard
	devMode   bool
}

// Package-level JWT secret for shared access
var sharedJWTSecret []byte

func NewAuthHandler(db *sql.DB, store *OTPStore, guard *OTPGuard) *AuthHandler {
	secret := os.Getenv("JWT_SECRET")
	env := os.Getenv("SC_ENV")

	if secret == "" {
		if env == "production" {
			log.Fatal().Msg("JWT_SECRET environment variable is required in production mode")
		}
		LogWarn("JWT_SECRET not set, using default secret. Set JWT_SECRET in production!")
		secret = "skycrate-dev-secret-not-for-production-use"
	} else if len(secret) < 32 {
		LogWarn("JWT_SECRET should be at least 32 characters for security")
	}

	sharedJWTSecret = []byte(secret)
	return &AuthHandler{
		db:        db,
		jwtSecret: []byte(secret),
		store:     store,
		guard:     guard,
		devMode:   env != "production",
	}
}

// JWTClaims represents JWT claims
type JWTClaims struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	jwt.RegisteredClaims
}

// GenerateJWT generates a session token for a verified principal
func GenerateJWT(userID, phoneNumber string) (string, error) {
	return GenerateJWTWithExpiration(userID, phoneNumber, 24*time.Hour)
}

// GenerateJWTWithExpiration generates a session token with custom expiration
func GenerateJWTWithExpiration(userID, phoneNumber string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		UserID:      userID,
		PhoneNumber: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "skycrate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(sharedJWTSecret)
}

// OTPRequest represents a challenge request
type OTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// OTPResponse represents the challenge response. The code itself is
// only echoed in development mode; production delivery goes out of band.
type OTPResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	OTP         string `json:"otp,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

// OTPVerificationRequest represents a code verification request
type OTPVerificationRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

// AuthResponse represents a successful verification
type AuthResponse struct {
	Token       string `json:"token"`
	PhoneNumber string `json:"phoneNumber"`
}

// RequestOTP issues a one-time code for a phone number. Requesting
// again for the same number invalidates the previous code.
func (h *AuthHandler) RequestOTP(c echo.Context) error {
	var req OTPRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if err := ValidatePhoneNumber(req.PhoneNumber); err != nil {
		return RespondError(c, NewAPIError(ErrCodeInvalidPhone, err.Error()))
	}

	ctx := c.Request().Context()
	ip := c.RealIP()

	if h.guard != nil && !h.guard.AllowRequest(ctx, ip, req.PhoneNumber) {
		return RespondError(c, NewAPIError(ErrCodeRateLimited, "Too many code requests, try again later"))
	}

	code, expiresAt, err := h.store.Issue(ctx, req.PhoneNumber)
	if err != nil {
		LogError("failed to issue OTP challenge", err, "phone", req.PhoneNumber)
		return RespondError(c, ErrInternal("Failed to send verification code"))
	}

	LogInfo("OTP challenge issued", "phone", req.PhoneNumber, "remote_ip", ip)

	resp := OTPResponse{
		Success:     true,
		Message:     "Verification code sent",
		PhoneNumber: req.PhoneNumber,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}
	if h.devMode {
		// No SMS gateway in development; surface the code to the caller.
		resp.OTP = code
	}
	return c.JSON(http.StatusOK, resp)
}

// VerifyOTP checks the submitted code and, on success, returns a
// session token. The principal row is created on first verification.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req OTPVerificationRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if err := ValidatePhoneNumber(req.PhoneNumber); err != nil {
		return RespondError(c, NewAPIError(ErrCodeInvalidPhone, err.Error()))
	}
	if err := ValidateOTPCode(req.OTP); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}

	ctx := c.Request().Context()
	ip := c.RealIP()

	if h.guard != nil && !h.guard.AllowVerify(ctx, req.PhoneNumber) {
		return RespondError(c, NewAPIError(ErrCodeRateLimited, "Too many failed attempts, request a new code later"))
	}

	if err := h.store.Verify(ctx, req.PhoneNumber, req.OTP); err != nil {
		if h.guard != nil {
			h.guard.RecordVerifyFailure(ctx, req.PhoneNumber)
		}
		LogWarn("OTP verification failed", "phone", req.PhoneNumber, "remote_ip", ip, "reason", err.Error())
		switch err {
		case ErrChallengeNotFound:
			return RespondError(c, NewAPIError(ErrCodeOTPExpired, "Code expired or not requested"))
		default:
			return RespondError(c, NewAPIError(ErrCodeOTPInvalid, "Invalid verification code"))
		}
	}

	userID, err := h.upsertUser(req.PhoneNumber)
	if err != nil {
		LogError("failed to upsert user", err, "phone", req.PhoneNumber)
		return RespondError(c, ErrInternal("Database error"))
	}

	token, err := GenerateJWT(userID, req.PhoneNumber)
	if err != nil {
		return RespondError(c, ErrInternal("Failed to generate token"))
	}

	if h.guard != nil {
		h.guard.RecordVerifySuccess(ctx, req.PhoneNumber)
	}

	LogInfo("user authenticated", "phone", req.PhoneNumber, "user_id", userID)

	return c.JSON(http.StatusOK, AuthResponse{
		Token:       token,
		PhoneNumber: req.PhoneNumber,
	})
}

// upsertUser returns the user id for a phone number, creating the row
// on first verification.
func (h *AuthHandler) upsertUser(phoneNumber string) (string, error) {
	var userID string
	err := h.db.QueryRow(`
		INSERT INTO users (phone_number, last_login_at)
		VALUES ($1, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET last_login_at = NOW()
		RETURNING id
	`, phoneNumber).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("upsert user %s: %w", phoneNumber, err)
	}
	return userID, nil
}

// JWTMiddleware validates session tokens
func (h *AuthHandler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tokenString string

		// First check Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Fallback to query parameter for streaming support (video/audio)
		if tokenString == "" {
			tokenString = c.QueryParam("token")
		}

		if tokenString == "" {
			return RespondError(c, ErrUnauthorized("Authorization required"))
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			return h.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			return RespondError(c, NewAPIError(ErrCodeInvalidToken, "Invalid or expired token"))
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			return RespondError(c, NewAPIError(ErrCodeInvalidToken, "Invalid token claims"))
		}

		c.Set("user", claims)

		return next(c)
	}
}
