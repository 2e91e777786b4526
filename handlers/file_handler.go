package handlers

import (
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// FileResponse represents a file in API responses
type FileResponse struct {
	ID         string  `json:"id"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`
	MimeType   string  `json:"mimeType"`
	FolderID   *string `json:"folderId"`
	UploadedAt string  `json:"uploadedAt"`
}

type fileRow struct {
	ID         string
	Name       string
	StoredName string
	Size       int64
	MimeType   string
	FolderID   sql.NullString
	CreatedAt  time.Time
}

func (r fileRow) toResponse() FileResponse {
	resp := FileResponse{
		ID:         r.ID,
		FileName:   r.Name,
		FileSize:   r.Size,
		MimeType:   r.MimeType,
		UploadedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if r.FolderID.Valid {
		resp.FolderID = &r.FolderID.String
	}
	return resp
}

const fileColumns = `id, display_name, stored_name, size, mime_type, folder_id, created_at`

// GetRootFiles lists files that sit outside any folder
func (h *Handler) GetRootFiles(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	rows, err := h.queryFiles(`
		SELECT `+fileColumns+`
		FROM files
		WHERE owner_id = $1 AND folder_id IS NULL
		ORDER BY display_name ASC
	`, claims.UserID)
	if err != nil {
		LogError("failed to list root files", err, "user_id", claims.UserID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, lo.Map(rows, func(r fileRow, _ int) FileResponse {
		return r.toResponse()
	}))
}

// GetFolderFiles lists files inside a folder
func (h *Handler) GetFolderFiles(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	folderID := c.Param("id")
	owned, err := h.folderOwned(folderID, claims.UserID)
	if err != nil {
		LogError("failed to check folder", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Database error"))
	}
	if !owned {
		return RespondError(c, ErrNotFound("Folder"))
	}

	rows, err := h.queryFiles(`
		SELECT `+fileColumns+`
		FROM files
		WHERE owner_id = $1 AND folder_id = $2
		ORDER BY display_name ASC
	`, claims.UserID, folderID)
	if err != nil {
		LogError("failed to list folder files", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, lo.Map(rows, func(r fileRow, _ int) FileResponse {
		return r.toResponse()
	}))
}

// DownloadFile streams the file bytes with the original display name
func (h *Handler) DownloadFile(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	row, apiErr := h.loadOwnedFile(c.Param("id"), claims.UserID)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	path := h.blobPath(row.StoredName)
	if _, err := os.Stat(path); err != nil {
		LogError("blob missing for file", err, "file_id", row.ID, "stored_name", row.StoredName)
		return RespondError(c, ErrInternal("File content unavailable"))
	}

	setContentDisposition(c, row.Name)
	c.Response().Header().Set("Content-Type", row.MimeType)
	return c.File(path)
}

// DeleteFile removes the file row and its blob. A missing blob is
// logged but does not fail the delete.
func (h *Handler) DeleteFile(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	row, apiErr := h.loadOwnedFile(c.Param("id"), claims.UserID)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	if _, err := h.db.Exec(`DELETE FROM files WHERE id = $1 AND owner_id = $2`, row.ID, claims.UserID); err != nil {
		LogError("failed to delete file row", err, "file_id", row.ID)
		return RespondError(c, ErrInternal("Failed to delete file"))
	}

	if err := os.Remove(h.blobPath(row.StoredName)); err != nil && !os.IsNotExist(err) {
		LogWarn("failed to remove blob", "file_id", row.ID, "stored_name", row.StoredName, "error", err.Error())
	}

	GetStorageUsageCache().Invalidate(claims.UserID)

	LogInfo("file deleted", "file_id", row.ID, "name", row.Name, "user_id", claims.UserID)
	h.notify(claims.UserID, Event{Type: "file.deleted", ItemType: "file", ItemID: row.ID})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      row.ID,
	})
}

func (h *Handler) queryFiles(query string, args ...interface{}) ([]fileRow, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fileRow
	for rows.Next() {
		var r fileRow
		if err := rows.Scan(&r.ID, &r.Name, &r.StoredName, &r.Size, &r.MimeType, &r.FolderID, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// loadOwnedFile fetches a file row scoped to its owner.
func (h *Handler) loadOwnedFile(fileID, userID string) (*fileRow, *APIError) {
	var r fileRow
	err := h.db.QueryRow(`
		SELECT `+fileColumns+`
		FROM files
		WHERE id = $1 AND owner_id = $2
	`, fileID, userID).Scan(&r.ID, &r.Name, &r.StoredName, &r.Size, &r.MimeType, &r.FolderID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("File")
	}
	if err != nil {
		LogError("failed to load file", err, "file_id", fileID)
		return nil, ErrInternal("Database error")
	}
	return &r, nil
}
