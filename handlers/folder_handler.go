package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// CreateFolderRequest represents the request body for folder creation
type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

// FolderResponse represents a folder in API responses
type FolderResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parentId"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

type folderRow struct {
	ID        string
	Name      string
	ParentID  sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r folderRow) toResponse() FolderResponse {
	resp := FolderResponse{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ParentID.Valid {
		resp.ParentID = &r.ParentID.String
	}
	return resp
}

// CreateFolder handles folder creation requests
func (h *Handler) CreateFolder(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	var req CreateFolderRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if err := ValidateFolderName(req.Name); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}

	// Parent must exist and belong to the caller
	if req.ParentID != nil {
		owned, err := h.folderOwned(*req.ParentID, claims.UserID)
		if err != nil {
			LogError("failed to check parent folder", err, "parent_id", *req.ParentID)
			return RespondError(c, ErrInternal("Database error"))
		}
		if !owned {
			return RespondError(c, ErrNotFound("Parent folder"))
		}
	}

	var row folderRow
	err = h.db.QueryRow(`
		INSERT INTO folders (name, parent_id, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, parent_id, created_at, updated_at
	`, req.Name, req.ParentID, claims.UserID).Scan(
		&row.ID, &row.Name, &row.ParentID, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return RespondError(c, ErrAlreadyExists("Folder"))
		}
		LogError("failed to create folder", err, "name", req.Name, "user_id", claims.UserID)
		return RespondError(c, ErrInternal("Failed to create folder"))
	}

	LogInfo("folder created", "folder_id", row.ID, "name", row.Name, "user_id", claims.UserID)
	h.notify(claims.UserID, Event{Type: "folder.created", ItemType: "folder", ItemID: row.ID})

	return c.JSON(http.StatusCreated, row.toResponse())
}

// GetRootFolders lists the caller's top-level folders
func (h *Handler) GetRootFolders(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	rows, err := h.queryFolders(`
		SELECT id, name, parent_id, created_at, updated_at
		FROM folders
		WHERE owner_id = $1 AND parent_id IS NULL
		ORDER BY name ASC
	`, claims.UserID)
	if err != nil {
		LogError("failed to list root folders", err, "user_id", claims.UserID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, lo.Map(rows, func(r folderRow, _ int) FolderResponse {
		return r.toResponse()
	}))
}

// GetSubfolders lists direct children of a folder
func (h *Handler) GetSubfolders(c echo.Context) error {
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

	rows, err := h.queryFolders(`
		SELECT id, name, parent_id, created_at, updated_at
		FROM folders
		WHERE owner_id = $1 AND parent_id = $2
		ORDER BY name ASC
	`, claims.UserID, folderID)
	if err != nil {
		LogError("failed to list subfolders", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, lo.Map(rows, func(r folderRow, _ int) FolderResponse {
		return r.toResponse()
	}))
}

// GetFolderDetails returns a single folder owned by the caller
func (h *Handler) GetFolderDetails(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	folderID := c.Param("id")

	var row folderRow
	err = h.db.QueryRow(`
		SELECT id, name, parent_id, created_at, updated_at
		FROM folders
		WHERE id = $1 AND owner_id = $2
	`, folderID, claims.UserID).Scan(
		&row.ID, &row.Name, &row.ParentID, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return RespondError(c, ErrNotFound("Folder"))
	}
	if err != nil {
		LogError("failed to load folder", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Database error"))
	}

	return c.JSON(http.StatusOK, row.toResponse())
}

// DeleteFolder removes an empty folder. Folders holding files or
// subfolders are rejected with a conflict.
func (h *Handler) DeleteFolder(c echo.Context) error {
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

	var childFolders, childFiles int
	err = h.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM folders WHERE parent_id = $1),
			(SELECT COUNT(*) FROM files WHERE folder_id = $1)
	`, folderID).Scan(&childFolders, &childFiles)
	if err != nil {
		LogError("failed to count folder contents", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Database error"))
	}

	if childFolders > 0 || childFiles > 0 {
		return RespondError(c, NewAPIError(ErrCodeConflict, "Folder is not empty"))
	}

	if _, err := h.db.Exec(`DELETE FROM folders WHERE id = $1 AND owner_id = $2`, folderID, claims.UserID); err != nil {
		LogError("failed to delete folder", err, "folder_id", folderID)
		return RespondError(c, ErrInternal("Failed to delete folder"))
	}

	LogInfo("folder deleted", "folder_id", folderID, "user_id", claims.UserID)
	h.notify(claims.UserID, Event{Type: "folder.deleted", ItemType: "folder", ItemID: folderID})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      folderID,
	})
}

func (h *Handler) queryFolders(query string, args ...interface{}) ([]folderRow, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []folderRow
	for rows.Next() {
		var r folderRow
		if err := rows.Scan(&r.ID, &r.Name, &r.ParentID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// folderOwned reports whether the folder exists and belongs to the user.
func (h *Handler) folderOwned(folderID, userID string) (bool, error) {
	var exists bool
	err := h.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM folders WHERE id = $1 AND owner_id = $2)
	`, folderID, userID).Scan(&exists)
	return exists, err
}
