package handlers

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeTestBlob(t *testing.T, dataRoot, storedName string, content []byte) {
	t.Helper()
	blobDir := filepath.Join(dataRoot, "blobs")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		t.Fatalf("Failed to create blob dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(blobDir, storedName), content, 0644); err != nil {
		t.Fatalf("Failed to write blob: %v", err)
	}
}

func expectFileLookup(tc *TestContext, fileID, userID string, row fileRow) {
	tc.Mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WithArgs(fileID, userID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "display_name", "stored_name", "size", "mime_type", "folder_id", "created_at",
		}).AddRow(row.ID, row.Name, row.StoredName, row.Size, row.MimeType, nil, row.CreatedAt))
}

func TestGetRootFiles(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	now := time.Now()
	tc.Mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "display_name", "stored_name", "size", "mime_type", "folder_id", "created_at",
		}).
			AddRow("1", "notes.txt", "aaa", int64(12), "text/plain", nil, now).
			AddRow("2", "photo.png", "bbb", int64(900), "image/png", nil, now))

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/root", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")

	if err := h.GetRootFiles(c); err != nil {
		t.Fatalf("GetRootFiles returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	var resp []FileResponse
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(resp))
	}
	if resp[0].FileName != "notes.txt" || resp[0].FileSize != 12 {
		t.Errorf("Unexpected first file: %+v", resp[0])
	}
}

func TestDownloadFile_Success(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	dataRoot := t.TempDir()
	h := NewHandler(tc.DB, dataRoot, nil)

	writeTestBlob(t, dataRoot, "abc123", []byte("hello world"))

	expectFileLookup(tc, "7", "42", fileRow{
		ID: "7", Name: "보고서.txt", StoredName: "abc123",
		Size: 11, MimeType: "text/plain", CreatedAt: time.Now(),
	})

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/7/download", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := h.DownloadFile(c); err != nil {
		t.Fatalf("DownloadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	if got := tc.Recorder.Body.String(); got != "hello world" {
		t.Errorf("Unexpected body: %q", got)
	}

	disposition := tc.Recorder.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "filename*=UTF-8''") {
		t.Errorf("Expected RFC 5987 filename, got %q", disposition)
	}
}

func TestDownloadFile_NotFound(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WithArgs("7", "42").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "display_name", "stored_name", "size", "mime_type", "folder_id", "created_at",
		}))

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/7/download", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := h.DownloadFile(c); err != nil {
		t.Fatalf("DownloadFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusNotFound)
}

func TestDeleteFile_RemovesBlob(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	dataRoot := t.TempDir()
	h := NewHandler(tc.DB, dataRoot, nil)

	writeTestBlob(t, dataRoot, "abc123", []byte("data"))

	expectFileLookup(tc, "7", "42", fileRow{
		ID: "7", Name: "old.txt", StoredName: "abc123",
		Size: 4, MimeType: "text/plain", CreatedAt: time.Now(),
	})
	tc.Mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM files`)).
		WithArgs("7", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, _ := NewJSONRequest(http.MethodDelete, "/api/files/7", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := h.DeleteFile(c); err != nil {
		t.Fatalf("DeleteFile returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	if _, err := os.Stat(filepath.Join(dataRoot, "blobs", "abc123")); !os.IsNotExist(err) {
		t.Error("Expected blob to be removed")
	}
}

func TestGetPreview_Text(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	dataRoot := t.TempDir()
	h := NewHandler(tc.DB, dataRoot, nil)

	writeTestBlob(t, dataRoot, "txtblob", []byte("line one\nline two"))

	expectFileLookup(tc, "7", "42", fileRow{
		ID: "7", Name: "notes.txt", StoredName: "txtblob",
		Size: 17, MimeType: "text/plain", CreatedAt: time.Now(),
	})

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/7/preview", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := h.GetPreview(c); err != nil {
		t.Fatalf("GetPreview returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	var resp map[string]interface{}
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["type"] != "text" {
		t.Errorf("Expected text preview, got %v", resp["type"])
	}
	if resp["content"] != "line one\nline two" {
		t.Errorf("Unexpected content: %v", resp["content"])
	}
	if resp["truncated"] != false {
		t.Error("Short file must not be truncated")
	}
}

func TestGetPreview_TextTruncation(t *testing.T) {
	cases := []struct {
		name      string
		size      int
		truncated bool
	}{
		{"exactly at the limit", textPreviewLimit, false},
		{"one byte over", textPreviewLimit + 1, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tc := SetupTest(t)
			defer tc.Cleanup()

			dataRoot := t.TempDir()
			h := NewHandler(tc.DB, dataRoot, nil)

			blob := bytes.Repeat([]byte("a"), tt.size)
			writeTestBlob(t, dataRoot, "bigtxt", blob)

			expectFileLookup(tc, "8", "42", fileRow{
				ID: "8", Name: "big.txt", StoredName: "bigtxt",
				Size: int64(tt.size), MimeType: "text/plain", CreatedAt: time.Now(),
			})

			req, _ := NewJSONRequest(http.MethodGet, "/api/files/8/preview", nil)
			c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
			c.SetParamNames("id")
			c.SetParamValues("8")

			if err := h.GetPreview(c); err != nil {
				t.Fatalf("GetPreview returned error: %v", err)
			}

			var resp map[string]interface{}
			if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp["truncated"] != tt.truncated {
				t.Errorf("Expected truncated=%v for %d bytes, got %v", tt.truncated, tt.size, resp["truncated"])
			}
			if len(resp["content"].(string)) != textPreviewLimit && tt.truncated {
				t.Errorf("Truncated content must be capped at the limit, got %d bytes", len(resp["content"].(string)))
			}
		})
	}
}

func TestGetPreview_VideoReturnsLocator(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	expectFileLookup(tc, "9", "42", fileRow{
		ID: "9", Name: "clip.mp4", StoredName: "vidblob",
		Size: 1 << 20, MimeType: "video/mp4", CreatedAt: time.Now(),
	})

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/9/preview", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := h.GetPreview(c); err != nil {
		t.Fatalf("GetPreview returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	var resp map[string]interface{}
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["type"] != "video" {
		t.Errorf("Expected video classification, got %v", resp["type"])
	}
	if resp["url"] != "/api/files/9/download" {
		t.Errorf("Unexpected locator: %v", resp["url"])
	}
}

func TestGetPreview_Unsupported(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	h := NewHandler(tc.DB, t.TempDir(), nil)

	expectFileLookup(tc, "9", "42", fileRow{
		ID: "9", Name: "archive.zip", StoredName: "zipblob",
		Size: 4096, MimeType: "application/zip", CreatedAt: time.Now(),
	})

	req, _ := NewJSONRequest(http.MethodGet, "/api/files/9/preview", nil)
	c := CreateAuthenticatedContext(tc.Echo, tc.Recorder, req, "42", "+15551234567")
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := h.GetPreview(c); err != nil {
		t.Fatalf("GetPreview returned error: %v", err)
	}

	// Unsupported types still answer 200; the classification itself
	// is the payload.
	AssertStatus(t, tc.Recorder, http.StatusOK)

	var resp map[string]interface{}
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["type"] != "unsupported" {
		t.Errorf("Expected unsupported classification, got %v", resp["type"])
	}
}

func TestDetectMimeType(t *testing.T) {
	cases := []struct {
		filename string
		declared string
		want     string
	}{
		{"a.png", "", "image/png"},
		{"a.png", "application/octet-stream", "image/png"},
		{"a.bin", "application/pdf", "application/pdf"},
		{"a.md", "", "text/markdown"},
		{"weird.unknownext", "", "application/octet-stream"},
	}

	for _, tc := range cases {
		if got := detectMimeType(tc.filename, tc.declared); got != tc.want {
			t.Errorf("detectMimeType(%q, %q) = %q, want %q", tc.filename, tc.declared, got, tc.want)
		}
	}
}
