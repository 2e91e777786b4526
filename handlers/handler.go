package handlers

import (
	"database/sql"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
)

// Handler serves the directory and content endpoints.
type Handler struct {
	db       *sql.DB
	dataRoot string
	hub      *EventHub
}

// NewHandler creates the directory/content handler. File bytes live
// under dataRoot/blobs keyed by their stored name; all metadata lives
// in postgres.
func NewHandler(db *sql.DB, dataRoot string, hub *EventHub) *Handler {
	return &Handler{
		db:       db,
		dataRoot: dataRoot,
		hub:      hub,
	}
}

// blobPath returns the on-disk location for a stored file.
func (h *Handler) blobPath(storedName string) string {
	return filepath.Join(h.dataRoot, "blobs", storedName)
}

// notify pushes a change event to the owner's live connections.
// Safe to call with a nil hub in tests.
func (h *Handler) notify(userID string, event Event) {
	if h.hub != nil {
		h.hub.Broadcast(userID, event)
	}
}

// isUniqueViolation reports whether err is a postgres unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// ServerVersion is stamped by main at startup for the health endpoint.
var ServerVersion string

func (h *Handler) HealthCheck(c echo.Context) error {
	dbStatus := "connected"
	if err := h.db.Ping(); err != nil {
		dbStatus = "disconnected"
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   ServerVersion,
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  dbStatus,
	})
}

// Fallback MIME types for extensions the stdlib table misses
var extraMimeTypes = map[string]string{
	".md":   "text/markdown",
	".log":  "text/plain",
	".yml":  "text/yaml",
	".yaml": "text/yaml",
	".toml": "text/plain",
	".mkv":  "video/x-matroska",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".7z":   "application/x-7z-compressed",
}

// detectMimeType resolves a MIME type from a filename, preferring the
// declared upload type when it carries real information.
func detectMimeType(filename, declared string) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if t := mime.TypeByExtension(ext); t != "" {
		return strings.Split(t, ";")[0]
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
