package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
)

const textPreviewLimit = 100 * 1024

// GetPreview classifies a file for inline viewing. Images return raw
// bytes, text returns inline content, streamable media returns a
// locator, and everything else is reported as unsupported.
func (h *Handler) GetPreview(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	row, apiErr := h.loadOwnedFile(c.Param("id"), claims.UserID)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	return h.renderPreview(c, row, fmt.Sprintf("/api/files/%s/download", row.ID))
}

// renderPreview produces a preview response for a file row. mediaURL
// is where the caller can stream video/audio/pdf content; for
// authenticated previews it points at the download endpoint, for
// public shares it points at the share route.
func (h *Handler) renderPreview(c echo.Context, row *fileRow, mediaURL string) error {
	mimeType := row.MimeType

	if strings.HasPrefix(mimeType, "image/") {
		c.Response().Header().Set("Content-Type", mimeType)
		return c.File(h.blobPath(row.StoredName))
	}

	if isTextPreviewable(mimeType) {
		content, err := h.readTextPreview(row.StoredName)
		if err != nil {
			LogError("failed to read text preview", err, "file_id", row.ID)
			return RespondError(c, ErrInternal("Failed to read file"))
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"type":     "text",
			"mimeType": mimeType,
			"content":  content,
			// A file of exactly the limit fits whole; only larger
			// files are cut.
			"truncated": row.Size > textPreviewLimit,
		})
	}

	if strings.HasPrefix(mimeType, "video/") || strings.HasPrefix(mimeType, "audio/") {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"type":     strings.Split(mimeType, "/")[0],
			"mimeType": mimeType,
			"url":      mediaURL,
			"size":     row.Size,
		})
	}

	if mimeType == "application/pdf" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"type":     "pdf",
			"mimeType": mimeType,
			"url":      mediaURL,
			"size":     row.Size,
		})
	}

	// Unsupported is a terminal classification, not an error.
	return c.JSON(http.StatusOK, map[string]interface{}{
		"type":     "unsupported",
		"mimeType": mimeType,
		"size":     row.Size,
	})
}

func isTextPreviewable(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/javascript":
		return true
	}
	return false
}

// readTextPreview reads the first chunk of a text blob.
func (h *Handler) readTextPreview(storedName string) (string, error) {
	file, err := os.Open(h.blobPath(storedName))
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, textPreviewLimit)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf[:n]), nil
}
