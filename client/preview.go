package client

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// PreviewKind classifies how a file can be shown inline.
type PreviewKind string

const (
	PreviewImage       PreviewKind = "image"
	PreviewText        PreviewKind = "text"
	PreviewVideo       PreviewKind = "video"
	PreviewAudio       PreviewKind = "audio"
	PreviewPDF         PreviewKind = "pdf"
	PreviewUnsupported PreviewKind = "unsupported"
)

// Preview is a resolved inline view of a file. Exactly one of Content
// and URL is meaningful depending on the kind: text carries Content,
// streamable kinds carry URL, images carry URL pointing at raw bytes.
// Unsupported is a terminal state, not an error.
type Preview struct {
	Kind      PreviewKind
	MimeType  string
	Content   string
	Truncated bool
	URL       string
	Size      int64
}

// Extension fallbacks for when no MIME type is available. Video is
// checked before audio so ambiguous containers like ogg resolve to
// video.
var (
	imageExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true,
	}
	videoExtensions = map[string]bool{
		"mp4": true, "webm": true, "ogg": true,
	}
	audioExtensions = map[string]bool{
		"mp3": true, "wav": true, "ogg": true,
	}
)

// ClassifyMime maps a MIME type to a preview kind.
func ClassifyMime(mimeType string) PreviewKind {
	base := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case strings.HasPrefix(base, "image/"):
		return PreviewImage
	case strings.HasPrefix(base, "text/"),
		base == "application/json", base == "application/xml", base == "application/javascript":
		return PreviewText
	case strings.HasPrefix(base, "video/"):
		return PreviewVideo
	case strings.HasPrefix(base, "audio/"):
		return PreviewAudio
	case base == "application/pdf":
		return PreviewPDF
	default:
		return PreviewUnsupported
	}
}

// ClassifyFilename maps a file name to a preview kind by extension,
// used when no MIME type is known (public share views).
func ClassifyFilename(name string) PreviewKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch {
	case imageExtensions[ext]:
		return PreviewImage
	case ext == "pdf":
		return PreviewPDF
	case videoExtensions[ext]:
		return PreviewVideo
	case audioExtensions[ext]:
		return PreviewAudio
	default:
		// Everything outside the closed image/pdf/video/audio sets is
		// unsupported; text is only recognized by MIME type.
		return PreviewUnsupported
	}
}

// PreviewResolver loads inline previews for owned files and public
// shares.
type PreviewResolver struct {
	client *Client
}

// NewPreviewResolver creates a preview resolver over an API client
func NewPreviewResolver(client *Client) *PreviewResolver {
	return &PreviewResolver{client: client}
}

type previewPayload struct {
	Type      string `json:"type"`
	MimeType  string `json:"mimeType"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
}

// ForFile resolves the preview of an owned file.
func (r *PreviewResolver) ForFile(ctx context.Context, file File) (*Preview, error) {
	if ClassifyMime(file.MimeType) == PreviewImage {
		// Image previews are the raw bytes; hand back a locator
		// instead of buffering them.
		return &Preview{
			Kind:     PreviewImage,
			MimeType: file.MimeType,
			URL:      r.authedURL(fmt.Sprintf("/api/files/%s/preview", file.ID)),
			Size:     file.FileSize,
		}, nil
	}

	return r.fetch(ctx, fmt.Sprintf("/api/files/%s/preview", file.ID))
}

// ForShare resolves the preview of a publicly shared file.
func (r *PreviewResolver) ForShare(ctx context.Context, token string, info ShareInfo) (*Preview, error) {
	if info.ItemType != "file" {
		return nil, fmt.Errorf("%w: previews only apply to file shares", ErrInvalidInput)
	}

	kind := ClassifyMime(info.MimeType)
	if kind == PreviewUnsupported && info.MimeType == "" {
		kind = ClassifyFilename(info.ItemName)
	}
	if kind == PreviewImage {
		return &Preview{
			Kind:     PreviewImage,
			MimeType: info.MimeType,
			URL:      fmt.Sprintf("%s/public/shared/%s/preview", r.client.BaseURL(), token),
			Size:     info.FileSize,
		}, nil
	}

	return r.fetch(ctx, fmt.Sprintf("/public/shared/%s/preview", token))
}

func (r *PreviewResolver) fetch(ctx context.Context, p string) (*Preview, error) {
	var payload previewPayload
	if err := r.client.doJSON(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return nil, err
	}

	preview := &Preview{
		Kind:      PreviewKind(payload.Type),
		MimeType:  payload.MimeType,
		Content:   payload.Content,
		Truncated: payload.Truncated,
		Size:      payload.Size,
	}
	if payload.URL != "" {
		preview.URL = r.authedURL(payload.URL)
	}
	return preview, nil
}

// authedURL turns a server-relative media path into an absolute URL
// carrying the session token as a query parameter, since media
// elements cannot set the Authorization header.
func (r *PreviewResolver) authedURL(p string) string {
	url := r.client.BaseURL() + p
	if session := r.client.Credentials().Session(); session.Authenticated() && !strings.HasPrefix(p, "/public/") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + session.Token
	}
	return url
}
