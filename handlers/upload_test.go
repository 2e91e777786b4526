package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

func newUploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write form content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func expectStorageUsage(tc *TestContext, userID string, used, quota int64) {
	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"used", "quota"}).AddRow(used, quota))
}

func TestUploadFile_ZeroQuotaMeansUnlimited(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)
	userID := "u-upload-1"

	// Fresh users start with the quota column's zero default
	expectStorageUsage(tc, userID, 0, 0)
	tc.Mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO files`)).
		WithArgs("hello.txt", sqlmock.AnyArg(), int64(5), "text/plain", nil, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("7", time.Now()))

	req := newUploadRequest(t, "hello.txt", "hello")
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, userID, "+15551234567")

	if err := h.UploadFile(c); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusCreated)

	var resp FileUploadResponse
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.FileID != "7" {
		t.Errorf("Expected file id 7, got %q", resp.FileID)
	}
	if resp.FileSize != 5 {
		t.Errorf("Expected size 5, got %d", resp.FileSize)
	}

	if err := tc.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestUploadFile_QuotaExceeded(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)
	userID := "u-upload-2"

	// 5 bytes would push usage past the 103-byte cap
	expectStorageUsage(tc, userID, 100, 103)

	req := newUploadRequest(t, "hello.txt", "hello")
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, userID, "+15551234567")

	if err := h.UploadFile(c); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusRequestEntityTooLarge)
	AssertErrorCode(t, tc.Recorder, ErrCodeQuotaExceeded)
}

func TestUploadFile_UnderQuota(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)
	userID := "u-upload-3"

	expectStorageUsage(tc, userID, 100, 1000)
	tc.Mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO files`)).
		WithArgs("hello.txt", sqlmock.AnyArg(), int64(5), "text/plain", nil, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("8", time.Now()))

	req := newUploadRequest(t, "hello.txt", "hello")
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, userID, "+15551234567")

	if err := h.UploadFile(c); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusCreated)
}

func TestUploadFile_BlockedExtension(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	req := newUploadRequest(t, "malware.exe", "MZ")
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "u-upload-4", "+15551234567")

	if err := h.UploadFile(c); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusBadRequest)
	AssertErrorCode(t, tc.Recorder, ErrCodeInvalidFilename)
}

func TestUploadFile_MissingFilePart(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "u-upload-5", "+15551234567")

	if err := h.UploadFile(c); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusBadRequest)
	AssertErrorCode(t, tc.Recorder, ErrCodeMissingParameter)
}
