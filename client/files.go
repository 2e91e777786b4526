package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// CreateFolder makes a folder under the given parent; a nil parent
// creates it at the root.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID *string) (*Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is required", ErrInvalidInput)
	}

	payload := struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId"`
	}{Name: name, ParentID: parentID}

	var folder Folder
	if err := c.doJSON(ctx, http.MethodPost, "/api/folders", payload, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// DeleteFolder removes an empty folder. Non-empty folders fail with
// ErrConflict.
func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/folders/%s", folderID), nil, nil)
}

// DeleteFile removes a file and its content
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/files/%s", fileID), nil, nil)
}

// Upload sends file content as a multipart request. A nil folderID
// puts the file at the root level.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader, folderID *string) (*File, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("skycrate: build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("skycrate: read upload content: %w", err)
	}
	if folderID != nil {
		if err := writer.WriteField("folderId", *folderID); err != nil {
			return nil, fmt.Errorf("skycrate: build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("skycrate: build upload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/files/upload", &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var uploaded struct {
		FileID     string  `json:"fileId"`
		FileName   string  `json:"fileName"`
		FileSize   int64   `json:"fileSize"`
		MimeType   string  `json:"mimeType"`
		FolderID   *string `json:"folderId"`
		UploadedAt string  `json:"uploadedAt"`
	}
	if err := decodeJSON(resp.Body, &uploaded); err != nil {
		return nil, err
	}

	return &File{
		ID:         uploaded.FileID,
		FileName:   uploaded.FileName,
		FileSize:   uploaded.FileSize,
		MimeType:   uploaded.MimeType,
		FolderID:   uploaded.FolderID,
		UploadedAt: uploaded.UploadedAt,
	}, nil
}

// Download streams file content. The caller closes the reader.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/files/%s/download", fileID), nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentLoadFailed, err)
	}
	return resp.Body, nil
}
