package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // GIF decode support
	"image/jpeg"
	_ "image/png" // PNG decode support
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support
)

// ThumbnailSize represents predefined thumbnail sizes
type ThumbnailSize struct {
	Width  int
	Height int
	Name   string
}

var ThumbnailSizes = map[string]ThumbnailSize{
	"small":  {Width: 100, Height: 100, Name: "small"},
	"medium": {Width: 300, Height: 300, Name: "medium"},
	"large":  {Width: 800, Height: 600, Name: "large"},
}

// GetThumbnail returns a downscaled JPEG for image files. The size
// query parameter picks one of the predefined sizes, defaulting to
// medium.
func (h *Handler) GetThumbnail(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	row, apiErr := h.loadOwnedFile(c.Param("id"), claims.UserID)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	if !strings.HasPrefix(row.MimeType, "image/") {
		return RespondError(c, ErrBadRequest("Thumbnails are only available for images"))
	}

	size, ok := ThumbnailSizes[c.QueryParam("size")]
	if !ok {
		size = ThumbnailSizes["medium"]
	}

	data, err := generateImageThumbnail(h.blobPath(row.StoredName), size)
	if err != nil {
		LogError("thumbnail generation failed", err, "file_id", row.ID)
		return RespondError(c, ErrInternal("Failed to generate thumbnail"))
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func generateImageThumbnail(filePath string, size ThumbnailSize) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	newWidth, newHeight := calculateThumbnailSize(bounds.Dx(), bounds.Dy(), size.Width, size.Height)

	thumb := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// calculateThumbnailSize calculates new dimensions maintaining aspect ratio
func calculateThumbnailSize(origWidth, origHeight, maxWidth, maxHeight int) (int, int) {
	if origWidth <= maxWidth && origHeight <= maxHeight {
		return origWidth, origHeight
	}

	ratio := float64(origWidth) / float64(origHeight)
	targetRatio := float64(maxWidth) / float64(maxHeight)

	var newWidth, newHeight int
	if ratio > targetRatio {
		newWidth = maxWidth
		newHeight = int(float64(maxWidth) / ratio)
	} else {
		newHeight = maxHeight
		newWidth = int(float64(maxHeight) * ratio)
	}

	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	return newWidth, newHeight
}
