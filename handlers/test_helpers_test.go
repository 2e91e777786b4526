package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

// TestContext holds common test dependencies
type TestContext struct {
	DB       *sql.DB
	Mock     sqlmock.Sqlmock
	Echo     *echo.Echo
	Recorder *httptest.ResponseRecorder
}

// SetupTest creates a new test context with mocked database
func SetupTest(t *testing.T) *TestContext {
	t.Helper()

	os.Setenv("JWT_SECRET", "test-jwt-secret-for-testing-only-32chars")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()

	return &TestContext{
		DB:       db,
		Mock:     mock,
		Echo:     e,
		Recorder: rec,
	}
}

// Cleanup closes the database connection
func (tc *TestContext) Cleanup() {
	tc.DB.Close()
}

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(method, path string, body interface{}) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, nil
}

// ParseJSONResponse parses the response body as JSON
func ParseJSONResponse(rec *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

// AssertStatus checks if the response status code matches expected
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rec.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, rec.Code, rec.Body.String())
	}
}

// AssertErrorCode checks the machine-readable error code of a response
func AssertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, expected ErrorCode) {
	t.Helper()
	var resp map[string]interface{}
	if err := ParseJSONResponse(rec, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	code, ok := resp["code"].(string)
	if !ok {
		t.Errorf("Response does not contain 'code' field. Response: %v", resp)
		return
	}

	if code != string(expected) {
		t.Errorf("Expected code '%s', got '%s'", expected, code)
	}
}

// newTestRequest builds a fresh recorder and context, useful when a
// test issues several requests.
func newTestRequest(tc *TestContext, method, path string, body interface{}) (*httptest.ResponseRecorder, echo.Context) {
	req, _ := NewJSONRequest(method, path, body)
	rec := httptest.NewRecorder()
	return rec, tc.Echo.NewContext(req, rec)
}

// CreateTestAuthHandler creates an AuthHandler with mocked database
// and in-memory OTP state.
func CreateTestAuthHandler(db *sql.DB) *AuthHandler {
	if sharedJWTSecret == nil {
		sharedJWTSecret = []byte("test-jwt-secret-for-testing-only-32chars")
	}

	return &AuthHandler{
		db:        db,
		jwtSecret: []byte("test-jwt-secret-for-testing-only-32chars"),
		store:     newOTPStoreForTest(),
		guard:     nil,
		devMode:   true,
	}
}

// CreateAuthenticatedContext creates an echo.Context with JWT claims set
func CreateAuthenticatedContext(e *echo.Echo, rec *httptest.ResponseRecorder, req *http.Request, userID, phoneNumber string) echo.Context {
	c := e.NewContext(req, rec)
	claims := &JWTClaims{
		UserID:      userID,
		PhoneNumber: phoneNumber,
	}
	c.Set("user", claims)
	return c
}
