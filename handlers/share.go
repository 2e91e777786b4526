package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// DefaultShareTTL is how long a share stays valid when the caller does
// not pick an expiry.
const DefaultShareTTL = 7 * 24 * time.Hour

// MaxShareTTL caps caller-chosen expiries at 30 days.
const MaxShareTTL = 30 * 24 * time.Hour

type ShareHandler struct {
	db       *sql.DB
	dataRoot string
	baseURL  string
	audit    *ShareLogger
}

func NewShareHandler(db *sql.DB, dataRoot, baseURL string) *ShareHandler {
	return &ShareHandler{
		db:       db,
		dataRoot: dataRoot,
		baseURL:  baseURL,
		audit:    NewShareLogger(),
	}
}

// CreateShareRequest represents share creation request
type CreateShareRequest struct {
	RecipientPhone string `json:"recipientPhone,omitempty"`
	Message        string `json:"message,omitempty"`
	ExpiresIn      int    `json:"expiresIn,omitempty"` // hours, 0 = default
}

// ShareResponse represents a share link in API responses
type ShareResponse struct {
	ShareID   string `json:"shareId"`
	LinkToken string `json:"linkToken"`
	ShareURL  string `json:"shareUrl"`
	ItemType  string `json:"itemType"`
	ItemName  string `json:"itemName"`
	ItemID    string `json:"itemId"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
}

type shareRow struct {
	ID        string
	LinkToken string
	ItemType  string
	ItemID    string
	ItemName  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (h *ShareHandler) toResponse(r shareRow) ShareResponse {
	return ShareResponse{
		ShareID:   r.ID,
		LinkToken: r.LinkToken,
		ShareURL:  fmt.Sprintf("%s/public/shared/%s", h.baseURL, r.LinkToken),
		ItemType:  r.ItemType,
		ItemName:  r.ItemName,
		ItemID:    r.ItemID,
		ExpiresAt: r.ExpiresAt.Format(time.RFC3339),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// CreateFileShare creates a public link for a file owned by the caller
func (h *ShareHandler) CreateFileShare(c echo.Context) error {
	return h.createShare(c, "file")
}

// CreateFolderShare creates a public link for a folder owned by the caller
func (h *ShareHandler) CreateFolderShare(c echo.Context) error {
	return h.createShare(c, "folder")
}

func (h *ShareHandler) createShare(c echo.Context, itemType string) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	var req CreateShareRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if req.RecipientPhone != "" {
		if err := ValidatePhoneNumber(req.RecipientPhone); err != nil {
			return RespondError(c, NewAPIError(ErrCodeInvalidPhone, err.Error()))
		}
	}

	itemID := c.Param("id")
	itemName, apiErr := h.itemName(itemType, itemID, claims.UserID)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	// Expiry is always server-assigned; the caller can shorten or
	// extend it within bounds but never remove it.
	ttl := DefaultShareTTL
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Hour
		if ttl > MaxShareTTL {
			ttl = MaxShareTTL
		}
	}
	expiresAt := time.Now().Add(ttl)

	token := generateShareToken()

	var row shareRow
	err = h.db.QueryRow(`
		INSERT INTO shares (link_token, item_type, item_id, recipient_phone, message, created_by, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		RETURNING id, created_at
	`, token, itemType, itemID, req.RecipientPhone, req.Message, claims.UserID, expiresAt).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		LogError("failed to create share", err, "item_type", itemType, "item_id", itemID)
		return RespondError(c, ErrInternal("Failed to create share"))
	}

	row.LinkToken = token
	row.ItemType = itemType
	row.ItemID = itemID
	row.ItemName = itemName
	row.ExpiresAt = expiresAt

	h.audit.LogCreated(claims.UserID, itemType, itemID, token, expiresAt)

	return c.JSON(http.StatusCreated, h.toResponse(row))
}

// ListMyShares returns shares created by the caller, newest first
func (h *ShareHandler) ListMyShares(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	rows, err := h.db.Query(`
		SELECT s.id, s.link_token, s.item_type, s.item_id, s.created_at, s.expires_at,
		       COALESCE(f.display_name, d.name, '') AS item_name
		FROM shares s
		LEFT JOIN files f ON s.item_type = 'file' AND f.id = s.item_id
		LEFT JOIN folders d ON s.item_type = 'folder' AND d.id = s.item_id
		WHERE s.created_by = $1
		ORDER BY s.created_at DESC
	`, claims.UserID)
	if err != nil {
		LogError("failed to list shares", err, "user_id", claims.UserID)
		return RespondError(c, ErrInternal("Database error"))
	}
	defer rows.Close()

	shares := []shareRow{}
	for rows.Next() {
		var r shareRow
		if err := rows.Scan(&r.ID, &r.LinkToken, &r.ItemType, &r.ItemID, &r.CreatedAt, &r.ExpiresAt, &r.ItemName); err != nil {
			LogError("failed to scan share row", err)
			return RespondError(c, ErrInternal("Database error"))
		}
		shares = append(shares, r)
	}
	if err := rows.Err(); err != nil {
		LogError("failed to iterate shares", err)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shares": lo.Map(shares, func(r shareRow, _ int) ShareResponse {
			return h.toResponse(r)
		}),
		"total": len(shares),
	})
}

// RevokeShare deletes a share. Once revoked the token behaves exactly
// like one that never existed.
func (h *ShareHandler) RevokeShare(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	shareID := c.Param("shareId")
	result, err := h.db.Exec(`
		DELETE FROM shares WHERE id = $1 AND created_by = $2
	`, shareID, claims.UserID)
	if err != nil {
		LogError("failed to revoke share", err, "share_id", shareID)
		return RespondError(c, ErrInternal("Failed to revoke share"))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return RespondError(c, ErrNotFound("Share"))
	}

	h.audit.LogRevoked(claims.UserID, shareID)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Share revoked",
	})
}

// resolvedShare is a share row joined with its item metadata, produced
// by resolveToken after validity checks.
type resolvedShare struct {
	ShareID    string
	ItemType   string
	ItemID     string
	ItemName   string
	ExpiresAt  time.Time
	FileSize   int64
	MimeType   string
	StoredName string
}

// resolveToken looks up a token and applies the expiry rule. Unknown
// and revoked tokens are indistinguishable; expired ones report their
// state explicitly.
func (h *ShareHandler) resolveToken(c echo.Context, token string) (*resolvedShare, *APIError) {
	var r resolvedShare
	var size sql.NullInt64
	var mimeType, storedName sql.NullString

	err := h.db.QueryRow(`
		SELECT s.id, s.item_type, s.item_id, s.expires_at,
		       COALESCE(f.display_name, d.name, '') AS item_name,
		       f.size, f.mime_type, f.stored_name
		FROM shares s
		LEFT JOIN files f ON s.item_type = 'file' AND f.id = s.item_id
		LEFT JOIN folders d ON s.item_type = 'folder' AND d.id = s.item_id
		WHERE s.link_token = $1
	`, token).Scan(&r.ShareID, &r.ItemType, &r.ItemID, &r.ExpiresAt, &r.ItemName, &size, &mimeType, &storedName)

	if err == sql.ErrNoRows {
		h.audit.LogResolved(token, c.RealIP(), false, "not_found")
		return nil, ErrShareNotFound()
	}
	if err != nil {
		LogError("failed to resolve share token", err)
		return nil, ErrInternal("Database error")
	}

	if time.Now().After(r.ExpiresAt) {
		h.audit.LogResolved(token, c.RealIP(), false, "expired")
		return nil, ErrShareExpired()
	}

	if size.Valid {
		r.FileSize = size.Int64
	}
	r.MimeType = mimeType.String
	r.StoredName = storedName.String

	h.audit.LogResolved(token, c.RealIP(), true, "")
	return &r, nil
}

// ShareInfo returns public metadata for a share token. No
// authentication; possession of the token is the only credential.
func (h *ShareHandler) ShareInfo(c echo.Context) error {
	share, apiErr := h.resolveToken(c, c.Param("token"))
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	info := map[string]interface{}{
		"itemType":  share.ItemType,
		"itemName":  share.ItemName,
		"expiresAt": share.ExpiresAt.Format(time.RFC3339),
	}
	if share.ItemType == "file" {
		info["fileSize"] = share.FileSize
		info["mimeType"] = share.MimeType
	}

	return c.JSON(http.StatusOK, info)
}

// PublicDownload streams shared file content. Folder shares list their
// direct children instead.
func (h *ShareHandler) PublicDownload(c echo.Context) error {
	share, apiErr := h.resolveToken(c, c.Param("token"))
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	if share.ItemType == "folder" {
		return h.listSharedFolder(c, share)
	}

	path := h.blobPath(share.StoredName)
	if _, err := os.Stat(path); err != nil {
		LogError("blob missing for shared file", err, "share_id", share.ShareID)
		return RespondError(c, ErrInternal("File content unavailable"))
	}

	setContentDisposition(c, share.ItemName)
	c.Response().Header().Set("Content-Type", share.MimeType)
	return c.File(path)
}

// PublicPreview classifies shared file content for inline viewing
func (h *ShareHandler) PublicPreview(c echo.Context) error {
	token := c.Param("token")
	share, apiErr := h.resolveToken(c, token)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	if share.ItemType != "file" {
		return RespondError(c, ErrBadRequest("Previews are only available for file shares"))
	}

	row := &fileRow{
		ID:         share.ItemID,
		Name:       share.ItemName,
		StoredName: share.StoredName,
		Size:       share.FileSize,
		MimeType:   share.MimeType,
	}

	handler := &Handler{db: h.db, dataRoot: h.dataRoot}
	return handler.renderPreview(c, row, fmt.Sprintf("/public/shared/%s", token))
}

// listSharedFolder returns the direct contents of a shared folder
func (h *ShareHandler) listSharedFolder(c echo.Context, share *resolvedShare) error {
	handler := &Handler{db: h.db, dataRoot: h.dataRoot}

	folders, err := handler.queryFolders(`
		SELECT id, name, parent_id, created_at, updated_at
		FROM folders WHERE parent_id = $1 ORDER BY name ASC
	`, share.ItemID)
	if err != nil {
		LogError("failed to list shared subfolders", err, "share_id", share.ShareID)
		return RespondError(c, ErrInternal("Database error"))
	}

	files, err := handler.queryFiles(`
		SELECT `+fileColumns+`
		FROM files WHERE folder_id = $1 ORDER BY display_name ASC
	`, share.ItemID)
	if err != nil {
		LogError("failed to list shared files", err, "share_id", share.ShareID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"folderName": share.ItemName,
		"folders": lo.Map(folders, func(r folderRow, _ int) FolderResponse {
			return r.toResponse()
		}),
		"files": lo.Map(files, func(r fileRow, _ int) FileResponse {
			return r.toResponse()
		}),
	})
}

func (h *ShareHandler) blobPath(storedName string) string {
	return filepath.Join(h.dataRoot, "blobs", storedName)
}

// itemName verifies ownership and returns the item's display name.
func (h *ShareHandler) itemName(itemType, itemID, userID string) (string, *APIError) {
	var query string
	switch itemType {
	case "file":
		query = `SELECT display_name FROM files WHERE id = $1 AND owner_id = $2`
	case "folder":
		query = `SELECT name FROM folders WHERE id = $1 AND owner_id = $2`
	default:
		return "", ErrBadRequest("Invalid item type")
	}

	var name string
	err := h.db.QueryRow(query, itemID, userID).Scan(&name)
	if err == sql.ErrNoRows {
		if itemType == "file" {
			return "", ErrNotFound("File")
		}
		return "", ErrNotFound("Folder")
	}
	if err != nil {
		LogError("failed to look up share target", err, "item_type", itemType, "item_id", itemID)
		return "", ErrInternal("Database error")
	}
	return name, nil
}

// generateShareToken generates a unique share token
func generateShareToken() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
