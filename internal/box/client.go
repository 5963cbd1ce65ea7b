// Package box implements the Box export adapter. Uploads are
// multipart/form-data with a JSON "attributes" part and a binary "file"
// part against the dedicated upload host; folders are looked up among a
// parent's children by name and created only when absent, with resolved
// ids cached on the client.
package box

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/batch"
	"github.com/gallerio/cloud-export/internal/httpx"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	defaultAPIBase    = "https://api.box.com/2.0"
	defaultUploadBase = "https://upload.box.com/api/2.0"
	authURL           = "https://account.box.com/api/oauth2/authorize"
	tokenURL          = "https://api.box.com/oauth2/token"
	landingURL        = "https://app.box.com/folder/0"

	rootFolderID = "0"
)

// Client is the Box adapter.
type Client struct {
	oauth      *oauth2.Config
	hc         *http.Client
	up         *http.Client
	apiBase    string
	uploadBase string
	limiter    *rate.Limiter

	mu      sync.Mutex
	folders map[string]string // "parentID/name" -> folder id
}

// NewClient builds a Box adapter for the given OAuth application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		hc:         httpx.NewClient(),
		up:         httpx.NewUploadClient(),
		apiBase:    defaultAPIBase,
		uploadBase: defaultUploadBase,
		limiter:    rate.NewLimiter(rate.Limit(8), 4),
		folders:    make(map[string]string),
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderBox) }

func (c *Client) SupportsArchiveUpload() bool { return true }

func (c *Client) AuthorizationURL(state, redirectURI string) string {
	return auth.CodeURL(c.oauth, state, redirectURI)
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*model.Credentials, error) {
	return auth.Exchange(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, code, redirectURI)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	return auth.Refresh(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, refreshToken)
}

// UploadFile uploads one file, optionally into a root-level folder, and
// returns an open shared link for it.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return "", err
	}

	parentID := rootFolderID
	if folderName != "" {
		var err error
		parentID, err = c.ensureFolder(ctx, creds.AccessToken, rootFolderID, folderName)
		if err != nil {
			return "", &api.FolderResolutionError{Provider: c.ProviderName(), Folder: folderName, Err: err}
		}
	}

	fileID, err := c.upload(ctx, creds.AccessToken, parentID, file)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	url, err := c.openSharedLink(ctx, creds.AccessToken, "files", fileID)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	return url, nil
}

// ExportFiles pushes the album into a folder tree rooted at a reused or
// new root-level folder, then opens a shared link on the root.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}

	return batch.Run(ctx, batch.Target{
		Provider: c.ProviderName(),
		ResolveRoot: func(ctx context.Context) (string, error) {
			return c.ensureFolder(ctx, creds.AccessToken, rootFolderID, req.AlbumName)
		},
		ResolveSet: func(ctx context.Context, rootID, set string) (string, error) {
			return c.ensureFolder(ctx, creds.AccessToken, rootID, set)
		},
		Upload: func(ctx context.Context, containerID string, file model.ExportFile) (string, error) {
			// The root folder's shared link covers individual files.
			_, err := c.upload(ctx, creds.AccessToken, containerID, file)
			return "", err
		},
		ContainerURL: func(ctx context.Context, rootID string) (string, error) {
			return c.openSharedLink(ctx, creds.AccessToken, "folders", rootID)
		},
		FallbackURL: landingURL,
		Limiter:     c.limiter,
	}, req)
}

type itemEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type itemCollection struct {
	Entries []itemEntry `json:"entries"`
}

// ensureFolder reuses a child folder by exact name, creating it only when
// the listing has no match. A create that loses a race to a concurrent
// creator (409) falls back to a second lookup.
func (c *Client) ensureFolder(ctx context.Context, bearer, parentID, name string) (string, error) {
	cacheKey := parentID + "/" + name
	c.mu.Lock()
	if id, ok := c.folders[cacheKey]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.findFolder(ctx, bearer, parentID, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = c.createFolder(ctx, bearer, parentID, name)
		if httpx.IsStatus(err, http.StatusConflict) {
			id, err = c.findFolder(ctx, bearer, parentID, name)
			if err == nil && id == "" {
				err = fmt.Errorf("folder %q conflicted but was not found on re-lookup", name)
			}
		}
		if err != nil {
			return "", err
		}
		logger.InfoTagged([]string{"Box"}, "Created folder %q (ID: %s)", name, id)
	} else {
		logger.InfoTagged([]string{"Box"}, "Reusing folder %q (ID: %s)", name, id)
	}

	c.mu.Lock()
	c.folders[cacheKey] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) findFolder(ctx context.Context, bearer, parentID, name string) (string, error) {
	u := fmt.Sprintf("%s/folders/%s/items?fields=id,type,name&limit=1000", c.apiBase, parentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var items itemCollection
	if err := httpx.DoJSON(c.hc, req, &items); err != nil {
		return "", fmt.Errorf("failed to list folder items: %w", err)
	}
	for _, e := range items.Entries {
		if e.Type == "folder" && e.Name == name {
			return e.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createFolder(ctx context.Context, bearer, parentID, name string) (string, error) {
	req, err := httpx.JSONRequest(ctx, http.MethodPost, c.apiBase+"/folders", map[string]interface{}{
		"name":   name,
		"parent": map[string]string{"id": parentID},
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var created itemEntry
	if err := httpx.DoJSON(c.hc, req, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// upload sends the multipart body: a JSON "attributes" part naming the
// file and its parent, then the raw "file" part.
func (c *Client) upload(ctx context.Context, bearer, parentID string, file model.ExportFile) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	attrs, err := json.Marshal(map[string]interface{}{
		"name":   file.Name,
		"parent": map[string]string{"id": parentID},
	})
	if err != nil {
		return "", err
	}
	if err := w.WriteField("attributes", string(attrs)); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return "", fmt.Errorf("failed to read file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBase+"/files/content", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp itemCollection
	if err := httpx.DoJSON(c.up, req, &resp); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if len(resp.Entries) == 0 {
		return "", fmt.Errorf("upload response contained no entries")
	}
	return resp.Entries[0].ID, nil
}

type sharedLinkItem struct {
	SharedLink struct {
		URL string `json:"url"`
	} `json:"shared_link"`
}

// openSharedLink sets shared_link.access=open on a file or folder and
// returns the resulting URL. kind is "files" or "folders".
func (c *Client) openSharedLink(ctx context.Context, bearer, kind, itemID string) (string, error) {
	u := fmt.Sprintf("%s/%s/%s?fields=shared_link", c.apiBase, kind, itemID)
	req, err := httpx.JSONRequest(ctx, http.MethodPut, u, map[string]interface{}{
		"shared_link": map[string]string{"access": "open"},
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var item sharedLinkItem
	if err := httpx.DoJSON(c.hc, req, &item); err != nil {
		return "", fmt.Errorf("failed to set shared link: %w", err)
	}
	return item.SharedLink.URL, nil
}
