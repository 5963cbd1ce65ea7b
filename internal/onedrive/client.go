// Package onedrive implements the OneDrive export adapter against the
// Microsoft Graph REST API. Items are path-addressed under the drive
// root. Files up to 4MB go up in one PUT; anything larger runs through an
// upload session of sequential byte-range chunks sized in 320 KiB units,
// as Graph requires.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	microsoftoauth "golang.org/x/oauth2/microsoft"
	"golang.org/x/time/rate"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/batch"
	"github.com/gallerio/cloud-export/internal/httpx"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	defaultAPIBase = "https://graph.microsoft.com/v1.0"
	landingURL     = "https://onedrive.live.com/"

	// simpleUploadLimit is the Graph ceiling for a single-PUT upload.
	simpleUploadLimit = 4 * 1024 * 1024

	// chunkSize must be a multiple of 320 KiB; ten units is the
	// documented sweet spot.
	chunkSize = 320 * 1024 * 10
)

// Client is the OneDrive adapter.
type Client struct {
	oauth   *oauth2.Config
	hc      *http.Client
	up      *http.Client
	apiBase string
	limiter *rate.Limiter
}

// NewClient builds a OneDrive adapter for the given OAuth application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"files.readwrite", "user.read", "offline_access"},
			Endpoint:     microsoftoauth.AzureADEndpoint("common"),
		},
		hc:      httpx.NewClient(),
		up:      httpx.NewUploadClient(),
		apiBase: defaultAPIBase,
		limiter: rate.NewLimiter(rate.Limit(8), 4),
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderOneDrive) }

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

type driveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// UploadFile uploads one file, optionally under a root-level folder, and
// returns an anonymous view link for it.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return "", err
	}
	path := file.Name
	if folderName != "" {
		path = folderName + "/" + file.Name
	}
	item, err := c.upload(ctx, creds.AccessToken, path, file)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	link, err := c.createLink(ctx, creds.AccessToken, item.ID)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	return link, nil
}

// ExportFiles uploads the album under <album>/<set>/<name> paths and
// returns an anonymous view link on the album folder.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}

	return batch.Run(ctx, batch.Target{
		Provider: c.ProviderName(),
		ResolveRoot: func(ctx context.Context) (string, error) {
			return req.AlbumName, nil
		},
		ResolveSet: func(ctx context.Context, rootPath, set string) (string, error) {
			return rootPath + "/" + set, nil
		},
		Upload: func(ctx context.Context, containerPath string, file model.ExportFile) (string, error) {
			item, err := c.upload(ctx, creds.AccessToken, containerPath+"/"+file.Name, file)
			if err != nil {
				return "", err
			}
			return item.WebURL, nil
		},
		ContainerURL: func(ctx context.Context, rootPath string) (string, error) {
			item, err := c.getItemByPath(ctx, creds.AccessToken, rootPath)
			if err != nil {
				return "", err
			}
			return c.createLink(ctx, creds.AccessToken, item.ID)
		},
		FallbackURL: landingURL,
		Limiter:     c.limiter,
	}, req)
}

// upload picks the single-PUT path for small bodies and the session path
// for large ones. Unknown sizes are buffered so the decision and the
// Content-Range totals are exact.
func (c *Client) upload(ctx context.Context, bearer, path string, file model.ExportFile) (*driveItem, error) {
	if file.Size > 0 && file.Size > simpleUploadLimit {
		return c.sessionUpload(ctx, bearer, path, file.Content, file.Size)
	}
	data, err := io.ReadAll(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if len(data) > simpleUploadLimit {
		return c.sessionUpload(ctx, bearer, path, bytes.NewReader(data), int64(len(data)))
	}
	return c.simpleUpload(ctx, bearer, path, data)
}

func (c *Client) simpleUpload(ctx context.Context, bearer, path string, data []byte) (*driveItem, error) {
	u := fmt.Sprintf("%s/me/drive/root:/%s:/content", c.apiBase, escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/octet-stream")

	var item driveItem
	if err := httpx.DoJSON(c.up, req, &item); err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return &item, nil
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

// sessionUpload creates an upload session and streams the body as
// sequential chunks. Chunks must tile [0, size-1] contiguously and in
// order, so this loop is never parallelized.
func (c *Client) sessionUpload(ctx context.Context, bearer, path string, content io.Reader, size int64) (*driveItem, error) {
	u := fmt.Sprintf("%s/me/drive/root:/%s:/createUploadSession", c.apiBase, escapePath(path))
	req, err := httpx.JSONRequest(ctx, http.MethodPost, u, map[string]interface{}{
		"item": map[string]interface{}{"@microsoft.graph.conflictBehavior": "rename"},
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var session uploadSession
	if err := httpx.DoJSON(c.hc, req, &session); err != nil {
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}

	buffer := make([]byte, chunkSize)
	var offset int64
	for offset < size {
		n, readErr := io.ReadFull(content, buffer)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return nil, readErr
		}
		if n == 0 {
			break
		}

		chunkReq, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(buffer[:n]))
		if err != nil {
			return nil, err
		}
		chunkReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(n)-1, size))
		chunkReq.ContentLength = int64(n)

		resp, err := c.up.Do(chunkReq)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			// Final chunk accepted; the body is the finished item.
			var item driveItem
			err := json.NewDecoder(resp.Body).Decode(&item)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return &item, nil
		case http.StatusAccepted:
			resp.Body.Close()
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
			return nil, &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		offset += int64(n)
	}
	return nil, fmt.Errorf("upload session ended without a final 200/201 response")
}

func (c *Client) getItemByPath(ctx context.Context, bearer, path string) (*driveItem, error) {
	u := fmt.Sprintf("%s/me/drive/root:/%s", c.apiBase, escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var item driveItem
	if err := httpx.DoJSON(c.hc, req, &item); err != nil {
		return nil, fmt.Errorf("failed to look up item %q: %w", path, err)
	}
	return &item, nil
}

type createLinkResponse struct {
	Link struct {
		WebURL string `json:"webUrl"`
	} `json:"link"`
}

// createLink requests an anonymous view link on an item.
func (c *Client) createLink(ctx context.Context, bearer, itemID string) (string, error) {
	u := fmt.Sprintf("%s/me/drive/items/%s/createLink", c.apiBase, itemID)
	req, err := httpx.JSONRequest(ctx, http.MethodPost, u, map[string]string{
		"type":  "view",
		"scope": "anonymous",
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var resp createLinkResponse
	if err := httpx.DoJSON(c.hc, req, &resp); err != nil {
		return "", fmt.Errorf("failed to create sharing link: %w", err)
	}
	return resp.Link.WebURL, nil
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
