package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

// ShareTestContext extends TestContext with share-specific helpers
type ShareTestContext struct {
	*TestContext
	Handler  *ShareHandler
	DataRoot string
}

// SetupShareTest creates a test context for share handler tests
func SetupShareTest(t *testing.T) *ShareTestContext {
	t.Helper()

	tc := SetupTest(t)
	dataRoot := t.TempDir()

	handler := &ShareHandler{
		db:       tc.DB,
		dataRoot: dataRoot,
		baseURL:  "http://localhost:8080",
		audit:    NewShareLogger(),
	}

	return &ShareTestContext{
		TestContext: tc,
		Handler:     handler,
		DataRoot:    dataRoot,
	}
}

func (stc *ShareTestContext) authedContext(rec *httptest.ResponseRecorder, req *http.Request, userID string) echo.Context {
	return CreateAuthenticatedContext(stc.Echo, rec, req, userID, "+15551234567")
}

func TestCreateFileShare_Success(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT display_name FROM files`)).
		WithArgs("7", "42").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("report.pdf"))

	created := time.Now()
	stc.Mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO shares`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("100", created))

	req, _ := NewJSONRequest(http.MethodPost, "/api/files/7/share", map[string]interface{}{})
	c := stc.authedContext(stc.Recorder, req, "42")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := stc.Handler.CreateFileShare(c); err != nil {
		t.Fatalf("CreateFileShare returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusCreated)

	var resp ShareResponse
	if err := ParseJSONResponse(stc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.ShareID != "100" {
		t.Errorf("Expected shareId 100, got %q", resp.ShareID)
	}
	if len(resp.LinkToken) != 32 {
		t.Errorf("Expected 32-char hex token, got %q", resp.LinkToken)
	}
	if resp.ItemType != "file" || resp.ItemName != "report.pdf" || resp.ItemID != "7" {
		t.Errorf("Unexpected item fields: %+v", resp)
	}

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		t.Fatalf("expiresAt is not RFC3339: %v", err)
	}
	// Default expiry is seven days out
	want := time.Now().Add(DefaultShareTTL)
	if expiresAt.Before(want.Add(-time.Minute)) || expiresAt.After(want.Add(time.Minute)) {
		t.Errorf("Expected default expiry near %v, got %v", want, expiresAt)
	}

	if err := stc.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet database expectations: %v", err)
	}
}

func TestCreateFileShare_NotOwned(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT display_name FROM files`)).
		WithArgs("7", "42").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}))

	req, _ := NewJSONRequest(http.MethodPost, "/api/files/7/share", map[string]interface{}{})
	c := stc.authedContext(stc.Recorder, req, "42")
	c.SetParamNames("id")
	c.SetParamValues("7")

	if err := stc.Handler.CreateFileShare(c); err != nil {
		t.Fatalf("CreateFileShare returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusNotFound)
}

func TestCreateFolderShare_Success(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM folders`)).
		WithArgs("3", "42").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Vacation Photos"))

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO shares`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("101", time.Now()))

	req, _ := NewJSONRequest(http.MethodPost, "/api/folders/3/share", map[string]interface{}{
		"expiresIn": 48,
	})
	c := stc.authedContext(stc.Recorder, req, "42")
	c.SetParamNames("id")
	c.SetParamValues("3")

	if err := stc.Handler.CreateFolderShare(c); err != nil {
		t.Fatalf("CreateFolderShare returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusCreated)

	var resp ShareResponse
	if err := ParseJSONResponse(stc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.ItemType != "folder" || resp.ItemName != "Vacation Photos" {
		t.Errorf("Unexpected item fields: %+v", resp)
	}

	expiresAt, _ := time.Parse(time.RFC3339, resp.ExpiresAt)
	want := time.Now().Add(48 * time.Hour)
	if expiresAt.Before(want.Add(-time.Minute)) || expiresAt.After(want.Add(time.Minute)) {
		t.Errorf("Expected expiry near %v, got %v", want, expiresAt)
	}
}

func TestRevokeShare_Success(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM shares`)).
		WithArgs("100", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, _ := NewJSONRequest(http.MethodDelete, "/api/shared/100", nil)
	c := stc.authedContext(stc.Recorder, req, "42")
	c.SetParamNames("shareId")
	c.SetParamValues("100")

	if err := stc.Handler.RevokeShare(c); err != nil {
		t.Fatalf("RevokeShare returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusOK)
}

func TestRevokeShare_NotOwned(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM shares`)).
		WithArgs("100", "43").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req, _ := NewJSONRequest(http.MethodDelete, "/api/shared/100", nil)
	c := stc.authedContext(stc.Recorder, req, "43")
	c.SetParamNames("shareId")
	c.SetParamValues("100")

	if err := stc.Handler.RevokeShare(c); err != nil {
		t.Fatalf("RevokeShare returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusNotFound)
}

// expectResolve wires the token lookup query with one share row.
func (stc *ShareTestContext) expectResolve(token string, expiresAt time.Time) {
	rows := sqlmock.NewRows([]string{
		"id", "item_type", "item_id", "expires_at", "item_name", "size", "mime_type", "stored_name",
	}).AddRow("100", "file", "7", expiresAt, "report.pdf", int64(2048), "application/pdf", "abc123")

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`FROM shares s`)).
		WithArgs(token).
		WillReturnRows(rows)
}

func TestShareInfo_Success(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.expectResolve("deadbeef", time.Now().Add(time.Hour))

	req, _ := NewJSONRequest(http.MethodGet, "/public/shared/deadbeef/info", nil)
	c := stc.Echo.NewContext(req, stc.Recorder)
	c.SetParamNames("token")
	c.SetParamValues("deadbeef")

	if err := stc.Handler.ShareInfo(c); err != nil {
		t.Fatalf("ShareInfo returned error: %v", err)
	}

	AssertStatus(t, stc.Recorder, http.StatusOK)

	var resp map[string]interface{}
	if err := ParseJSONResponse(stc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["itemType"] != "file" || resp["itemName"] != "report.pdf" {
		t.Errorf("Unexpected info payload: %v", resp)
	}
	if resp["mimeType"] != "application/pdf" {
		t.Errorf("Expected mimeType for file shares, got %v", resp["mimeType"])
	}
}

func TestShareInfo_Expired(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.expectResolve("deadbeef", time.Now().Add(-time.Hour))

	req, _ := NewJSONRequest(http.MethodGet, "/public/shared/deadbeef/info", nil)
	c := stc.Echo.NewContext(req, stc.Recorder)
	c.SetParamNames("token")
	c.SetParamValues("deadbeef")

	if err := stc.Handler.ShareInfo(c); err != nil {
		t.Fatalf("ShareInfo returned error: %v", err)
	}

	// Expired links answer 410, never 404
	AssertStatus(t, stc.Recorder, http.StatusGone)
	AssertErrorCode(t, stc.Recorder, ErrCodeShareExpired)
}

func TestShareInfo_UnknownToken(t *testing.T) {
	stc := SetupShareTest(t)
	defer stc.Cleanup()

	stc.Mock.ExpectQuery(regexp.QuoteMeta(`FROM shares s`)).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "item_type", "item_id", "expires_at", "item_name", "size", "mime_type", "stored_name",
		}))

	req, _ := NewJSONRequest(http.MethodGet, "/public/shared/unknown/info", nil)
	c := stc.Echo.NewContext(req, stc.Recorder)
	c.SetParamNames("token")
	c.SetParamValues("unknown")

	if err := stc.Handler.ShareInfo(c); err != nil {
		t.Fatalf("ShareInfo returned error: %v", err)
	}

	// Revoked and never-issued tokens are indistinguishable
	AssertStatus(t, stc.Recorder, http.StatusNotFound)
	AssertErrorCode(t, stc.Recorder, ErrCodeShareNotFound)
}

func TestGenerateShareToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := generateShareToken()
		if len(token) != 32 {
			t.Fatalf("Expected 32-char token, got %d chars", len(token))
		}
		if seen[token] {
			t.Fatal("Duplicate token generated")
		}
		seen[token] = true
	}
}
