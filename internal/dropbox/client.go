// Package dropbox implements the Dropbox export adapter. Dropbox is
// path-addressed: folders are implicit in the upload path and never
// created explicitly. Upload parameters travel in the Dropbox-API-Arg
// header as JSON while the request body carries the raw bytes.
package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/batch"
	"github.com/gallerio/cloud-export/internal/httpx"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com/2"
	defaultContentBase = "https://content.dropboxapi.com/2"
	authURL            = "https://www.dropbox.com/oauth2/authorize"
	tokenURL           = "https://api.dropboxapi.com/oauth2/token"
	landingURL         = "https://www.dropbox.com/home"
)

// Client is the Dropbox adapter.
type Client struct {
	oauth       *oauth2.Config
	hc          *http.Client
	up          *http.Client
	apiBase     string
	contentBase string
	limiter     *rate.Limiter

	mu    sync.Mutex
	links map[string]string // path -> shared link
}

// NewClient builds a Dropbox adapter for the given OAuth application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		hc:          httpx.NewClient(),
		up:          httpx.NewUploadClient(),
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
		limiter:     rate.NewLimiter(rate.Limit(8), 4),
		links:       make(map[string]string),
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderDropbox) }

func (c *Client) SupportsArchiveUpload() bool { return true }

// AuthorizationURL asks for offline token access so Dropbox issues a
// refresh token.
func (c *Client) AuthorizationURL(state, redirectURI string) string {
	return auth.CodeURL(c.oauth, state, redirectURI, oauth2.SetAuthURLParam("token_access_type", "offline"))
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*model.Credentials, error) {
	return auth.Exchange(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, code, redirectURI)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	return auth.Refresh(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, refreshToken)
}

// UploadFile uploads one file, optionally under a root-level folder, and
// returns its shared link.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return "", err
	}
	path := "/" + file.Name
	if folderName != "" {
		path = "/" + folderName + path
	}
	if err := c.upload(ctx, creds.AccessToken, path, file); err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	url, err := c.sharedLink(ctx, creds.AccessToken, path)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	return url, nil
}

// ExportFiles uploads the album under /<album>/<set>/<name> paths.
// Folder "creation" is free — the path implies it — so set resolution
// only joins path segments. The returned URL is a shared link on the
// album folder.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}

	return batch.Run(ctx, batch.Target{
		Provider: c.ProviderName(),
		ResolveRoot: func(ctx context.Context) (string, error) {
			return "/" + req.AlbumName, nil
		},
		ResolveSet: func(ctx context.Context, rootPath, set string) (string, error) {
			return rootPath + "/" + set, nil
		},
		Upload: func(ctx context.Context, containerPath string, file model.ExportFile) (string, error) {
			path := containerPath + "/" + file.Name
			if err := c.upload(ctx, creds.AccessToken, path, file); err != nil {
				return "", err
			}
			// Per-file links are skipped in a batch; the album folder
			// link covers them.
			return "", nil
		},
		ContainerURL: func(ctx context.Context, rootPath string) (string, error) {
			return c.sharedLink(ctx, creds.AccessToken, rootPath)
		},
		FallbackURL: landingURL,
		Limiter:     c.limiter,
	}, req)
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

// upload sends the raw body with the upload parameters JSON-encoded in
// the Dropbox-API-Arg header.
func (c *Client) upload(ctx context.Context, bearer, path string, file model.ExportFile) error {
	arg, err := json.Marshal(uploadArg{Path: path, Mode: "add", Autorename: true, Mute: true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/upload", file.Content)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	if _, err := httpx.Do(c.up, req); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

type sharedLinkResponse struct {
	URL string `json:"url"`
}

type listSharedLinksResponse struct {
	Links []sharedLinkResponse `json:"links"`
}

// sharedLink creates a shared link for path, falling back to the existing
// link when Dropbox reports one already exists (409).
func (c *Client) sharedLink(ctx context.Context, bearer, path string) (string, error) {
	c.mu.Lock()
	if url, ok := c.links[path]; ok {
		c.mu.Unlock()
		return url, nil
	}
	c.mu.Unlock()

	req, err := httpx.JSONRequest(ctx, http.MethodPost, c.apiBase+"/sharing/create_shared_link_with_settings",
		map[string]string{"path": path})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var link sharedLinkResponse
	err = httpx.DoJSON(c.hc, req, &link)
	if httpx.IsStatus(err, http.StatusConflict) {
		// shared_link_already_exists: fetch it instead.
		req, err = httpx.JSONRequest(ctx, http.MethodPost, c.apiBase+"/sharing/list_shared_links",
			map[string]interface{}{"path": path, "direct_only": true})
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+bearer)

		var list listSharedLinksResponse
		if err := httpx.DoJSON(c.hc, req, &list); err != nil {
			return "", fmt.Errorf("failed to list shared links: %w", err)
		}
		if len(list.Links) == 0 {
			return "", fmt.Errorf("no shared link found for %q", path)
		}
		link = list.Links[0]
	} else if err != nil {
		return "", fmt.Errorf("failed to create shared link: %w", err)
	}

	c.mu.Lock()
	c.links[path] = link.URL
	c.mu.Unlock()
	return link.URL, nil
}
