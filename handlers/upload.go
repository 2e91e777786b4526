package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
)

// MaxUploadSize caps a single upload at 2 GiB
const MaxUploadSize = 2 << 30

// FileUploadResponse represents a completed upload
type FileUploadResponse struct {
	FileID     string  `json:"fileId"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`
	MimeType   string  `json:"mimeType"`
	FolderID   *string `json:"folderId"`
	UploadedAt string  `json:"uploadedAt"`
	Message    string  `json:"message"`
}

// UploadFile accepts a multipart upload. The optional folderId form
// field places the file inside a folder; without it the file lands at
// the root level.
func (h *Handler) UploadFile(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return RespondError(c, ErrMissingParameter("file"))
	}

	if fileHeader.Size > MaxUploadSize {
		return RespondError(c, NewAPIError(ErrCodeFileTooLarge, "File exceeds the maximum upload size"))
	}

	if err := ValidateUploadFilename(fileHeader.Filename); err != nil {
		return RespondError(c, NewAPIError(ErrCodeInvalidFilename, err.Error()))
	}

	mimeType := detectMimeType(fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err := ValidateUploadMimeType(mimeType); err != nil {
		return RespondError(c, NewAPIError(ErrCodeInvalidFilename, err.Error()))
	}

	var folderID *string
	if raw := c.FormValue("folderId"); raw != "" {
		owned, err := h.folderOwned(raw, claims.UserID)
		if err != nil {
			LogError("failed to check folder", err, "folder_id", raw)
			return RespondError(c, ErrInternal("Database error"))
		}
		if !owned {
			return RespondError(c, ErrNotFound("Folder"))
		}
		folderID = &raw
	}

	usage, err := h.storageUsage(claims.UserID)
	if err != nil {
		LogError("failed to load storage usage", err, "user_id", claims.UserID)
		return RespondError(c, ErrInternal("Database error"))
	}
	// A zero quota means unlimited.
	if usage.Quota > 0 && usage.Used+fileHeader.Size > usage.Quota {
		return RespondError(c, ErrQuotaExceeded(usage.Quota, usage.Used, fileHeader.Size))
	}

	storedName, err := generateStoredName()
	if err != nil {
		return RespondError(c, ErrInternal("Failed to allocate storage name"))
	}

	written, err := h.writeBlob(fileHeader, storedName)
	if err != nil {
		LogError("failed to write blob", err, "stored_name", storedName)
		return RespondError(c, ErrInternal("Failed to store file"))
	}

	var fileID string
	var createdAt time.Time
	err = h.db.QueryRow(`
		INSERT INTO files (display_name, stored_name, size, mime_type, folder_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, fileHeader.Filename, storedName, written, mimeType, folderID, claims.UserID).Scan(&fileID, &createdAt)
	if err != nil {
		// Roll back the blob so orphans don't accumulate
		os.Remove(h.blobPath(storedName))
		LogError("failed to insert file row", err, "name", fileHeader.Filename)
		return RespondError(c, ErrInternal("Failed to store file"))
	}

	GetStorageUsageCache().Invalidate(claims.UserID)

	LogInfo("file uploaded", "file_id", fileID, "name", fileHeader.Filename,
		"size", written, "mime_type", mimeType, "user_id", claims.UserID)
	h.notify(claims.UserID, Event{Type: "file.uploaded", ItemType: "file", ItemID: fileID})

	return c.JSON(http.StatusCreated, FileUploadResponse{
		FileID:     fileID,
		FileName:   fileHeader.Filename,
		FileSize:   written,
		MimeType:   mimeType,
		FolderID:   folderID,
		UploadedAt: createdAt.Format(time.RFC3339),
		Message:    "File uploaded successfully",
	})
}

// writeBlob copies the upload into the blob directory and returns the
// byte count actually written.
func (h *Handler) writeBlob(fileHeader *multipart.FileHeader, storedName string) (int64, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	blobDir := filepath.Join(h.dataRoot, "blobs")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return 0, err
	}

	dst, err := os.Create(filepath.Join(blobDir, storedName))
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dst.Name())
		return 0, err
	}
	return written, nil
}

// generateStoredName returns an opaque on-disk name so display names
// never touch the filesystem.
func generateStoredName() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
