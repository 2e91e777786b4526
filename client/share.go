package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Share is a public link created by the current user.
type Share struct {
	ShareID   string `json:"shareId"`
	LinkToken string `json:"linkToken"`
	ShareURL  string `json:"shareUrl"`
	ItemType  string `json:"itemType"`
	ItemName  string `json:"itemName"`
	ItemID    string `json:"itemId"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
}

// ShareInfo is the public view of a resolved link token.
type ShareInfo struct {
	ItemType  string `json:"itemType"`
	ItemName  string `json:"itemName"`
	ExpiresAt string `json:"expiresAt"`
	FileSize  int64  `json:"fileSize,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

// ShareOptions tune a new share link.
type ShareOptions struct {
	RecipientPhone string `json:"recipientPhone,omitempty"`
	Message        string `json:"message,omitempty"`
	ExpiresIn      int    `json:"expiresIn,omitempty"` // hours, 0 picks the server default
}

// ShareManager creates, lists, revokes and resolves public links.
type ShareManager struct {
	client *Client
}

// NewShareManager creates a share manager over an API client
func NewShareManager(client *Client) *ShareManager {
	return &ShareManager{client: client}
}

// ShareFile creates a public link for a file
func (m *ShareManager) ShareFile(ctx context.Context, fileID string, opts ShareOptions) (*Share, error) {
	return m.create(ctx, fmt.Sprintf("/api/files/%s/share", fileID), opts)
}

// ShareFolder creates a public link for a folder
func (m *ShareManager) ShareFolder(ctx context.Context, folderID string, opts ShareOptions) (*Share, error) {
	return m.create(ctx, fmt.Sprintf("/api/folders/%s/share", folderID), opts)
}

func (m *ShareManager) create(ctx context.Context, path string, opts ShareOptions) (*Share, error) {
	if opts.RecipientPhone != "" && !phonePattern.MatchString(opts.RecipientPhone) {
		return nil, fmt.Errorf("%w: recipient phone %q is not in international format", ErrInvalidInput, opts.RecipientPhone)
	}

	var share Share
	if err := m.client.doJSON(ctx, http.MethodPost, path, opts, &share); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShareCreationFailed, err)
	}
	return &share, nil
}

// ListMyShares returns the caller's shares, newest first
func (m *ShareManager) ListMyShares(ctx context.Context) ([]Share, error) {
	var resp struct {
		Shares []Share `json:"shares"`
		Total  int     `json:"total"`
	}
	if err := m.client.doJSON(ctx, http.MethodGet, "/api/shared/my-shares", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Shares, nil
}

// Revoke permanently disables a share. A revoked token is
// indistinguishable from one that never existed; there is no undo.
func (m *ShareManager) Revoke(ctx context.Context, shareID string) error {
	return m.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/shared/%s", shareID), nil, nil)
}

// Resolve looks up a public link token. Expired links fail with
// ErrShareExpired; revoked or unknown tokens with ErrShareNotFound.
// Resolution needs no session.
func (m *ShareManager) Resolve(ctx context.Context, token string) (*ShareInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: link token is required", ErrInvalidInput)
	}

	var info ShareInfo
	if err := m.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/public/shared/%s/info", token), nil, &info); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrShareNotFound, err)
		}
		return nil, err
	}
	return &info, nil
}

// PublicDownloadURL returns the content URL for a link token. The
// token itself is the only credential embedded in it.
func (m *ShareManager) PublicDownloadURL(token string) string {
	return fmt.Sprintf("%s/public/shared/%s", m.client.BaseURL(), token)
}
