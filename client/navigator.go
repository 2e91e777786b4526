package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Folder is a directory entry.
type Folder struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parentId"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// File is a stored file's metadata.
type File struct {
	ID         string  `json:"id"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`
	MimeType   string  `json:"mimeType"`
	FolderID   *string `json:"folderId"`
	UploadedAt string  `json:"uploadedAt"`
}

// Crumb is one step of the navigation trail. A nil ID marks the root.
type Crumb struct {
	ID   *string
	Name string
}

// Listing is the content of the current location.
type Listing struct {
	Folders []Folder
	Files   []File
}

// Navigator tracks the current location in the folder tree and keeps
// the breadcrumb trail consistent with it. Folder and file fetches for
// a location land together or not at all; a failed fetch leaves the
// previous state untouched.
type Navigator struct {
	client *Client

	mu      sync.Mutex
	trail   []Crumb
	listing Listing
	// generation invalidates in-flight fetches when a newer
	// navigation starts.
	generation uint64
}

const rootCrumbName = "Home"

// NewNavigator creates a navigator positioned at the root
func NewNavigator(client *Client) *Navigator {
	return &Navigator{
		client: client,
		trail:  []Crumb{{ID: nil, Name: rootCrumbName}},
	}
}

// Trail returns a copy of the breadcrumb trail
func (n *Navigator) Trail() []Crumb {
	n.mu.Lock()
	defer n.mu.Unlock()
	trail := make([]Crumb, len(n.trail))
	copy(trail, n.trail)
	return trail
}

// Current returns a copy of the current listing
func (n *Navigator) Current() Listing {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Listing{
		Folders: append([]Folder(nil), n.listing.Folders...),
		Files:   append([]File(nil), n.listing.Files...),
	}
}

// EnterRoot loads the top level and resets the trail to just Home.
func (n *Navigator) EnterRoot(ctx context.Context) error {
	gen := n.nextGeneration()

	listing, err := n.fetch(ctx, "/api/folders/root", "/api/files/root")
	if err != nil {
		return err
	}

	n.commit(gen, []Crumb{{ID: nil, Name: rootCrumbName}}, listing)
	return nil
}

// EnterFolder descends into a folder. If the folder already sits on
// the trail, the trail is truncated back to it instead of growing; the
// same folder is never stacked twice.
func (n *Navigator) EnterFolder(ctx context.Context, folderID, name string) error {
	if folderID == "" {
		return fmt.Errorf("%w: folder id is required", ErrInvalidInput)
	}

	gen := n.nextGeneration()

	listing, err := n.fetch(ctx,
		fmt.Sprintf("/api/folders/%s/subfolders", folderID),
		fmt.Sprintf("/api/files/folder/%s", folderID))
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.generation {
		// A newer navigation superseded this one.
		return nil
	}

	trail := n.trail
	truncated := false
	for i, crumb := range trail {
		if crumb.ID != nil && *crumb.ID == folderID {
			trail = trail[:i+1]
			truncated = true
			break
		}
	}
	if !truncated {
		id := folderID
		trail = append(trail, Crumb{ID: &id, Name: name})
	}

	n.trail = trail
	n.listing = listing
	return nil
}

// JumpTo navigates to a trail position by index, truncating everything
// after it.
func (n *Navigator) JumpTo(ctx context.Context, index int) error {
	n.mu.Lock()
	if index < 0 || index >= len(n.trail) {
		n.mu.Unlock()
		return fmt.Errorf("%w: trail index %d out of range", ErrInvalidInput, index)
	}
	crumb := n.trail[index]
	n.mu.Unlock()

	if crumb.ID == nil {
		return n.EnterRoot(ctx)
	}
	return n.EnterFolder(ctx, *crumb.ID, crumb.Name)
}

// Refresh reloads the current location without touching the trail.
func (n *Navigator) Refresh(ctx context.Context) error {
	n.mu.Lock()
	crumb := n.trail[len(n.trail)-1]
	n.mu.Unlock()

	gen := n.nextGeneration()

	var listing Listing
	var err error
	if crumb.ID == nil {
		listing, err = n.fetch(ctx, "/api/folders/root", "/api/files/root")
	} else {
		listing, err = n.fetch(ctx,
			fmt.Sprintf("/api/folders/%s/subfolders", *crumb.ID),
			fmt.Sprintf("/api/files/folder/%s", *crumb.ID))
	}
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if gen == n.generation {
		n.listing = listing
	}
	return nil
}

// fetch loads folders and files concurrently. Either both succeed or
// the first error wins and no partial result escapes.
func (n *Navigator) fetch(ctx context.Context, foldersPath, filesPath string) (Listing, error) {
	var listing Listing

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.client.doJSON(gctx, http.MethodGet, foldersPath, nil, &listing.Folders)
	})
	g.Go(func() error {
		return n.client.doJSON(gctx, http.MethodGet, filesPath, nil, &listing.Files)
	})
	if err := g.Wait(); err != nil {
		return Listing{}, fmt.Errorf("%w: %w", ErrContentLoadFailed, err)
	}
	return listing, nil
}

func (n *Navigator) nextGeneration() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
	return n.generation
}

func (n *Navigator) commit(gen uint64, trail []Crumb, listing Listing) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.generation {
		return
	}
	n.trail = trail
	n.listing = listing
}
