// Package photos implements the Google Photos export adapter against the
// Photos Library REST API. Photos has no folder concept: an export maps
// the album name to one flat album and ignores set names. Uploads are
// two-phase (raw bytes to an upload token, then mediaItems:batchCreate)
// with item creation batched at most 50 per call.
package photos

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/httpx"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	defaultAPIBase = "https://photoslibrary.googleapis.com/v1"
	photosScope    = "https://www.googleapis.com/auth/photoslibrary"
	landingURL     = "https://photos.google.com/"

	// maxCreateBatch is the Photos Library limit for one batchCreate call.
	maxCreateBatch = 50

	albumPageSize = 50
)

// Client is the Google Photos adapter.
type Client struct {
	oauth   *oauth2.Config
	hc      *http.Client
	up      *http.Client
	apiBase string
}

// NewClient builds a Photos adapter for the given OAuth application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{photosScope},
			Endpoint:     googleoauth.Endpoint,
		},
		hc:      httpx.NewClient(),
		up:      httpx.NewUploadClient(),
		apiBase: defaultAPIBase,
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderGooglePhotos) }

// SupportsArchiveUpload is false: Photos ingests media items, not
// archives.
func (c *Client) SupportsArchiveUpload() bool { return false }

func (c *Client) AuthorizationURL(state, redirectURI string) string {
	return auth.CodeURL(c.oauth, state, redirectURI, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*model.Credentials, error) {
	return auth.Exchange(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, code, redirectURI)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	return auth.Refresh(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, refreshToken)
}

type album struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ProductURL string `json:"productUrl"`
}

type albumList struct {
	Albums        []album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

type simpleMediaItem struct {
	FileName    string `json:"fileName"`
	UploadToken string `json:"uploadToken"`
}

type newMediaItem struct {
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type mediaItem struct {
	ID         string `json:"id"`
	ProductURL string `json:"productUrl"`
}

type newMediaItemResult struct {
	UploadToken string `json:"uploadToken"`
	Status      struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	MediaItem *mediaItem `json:"mediaItem"`
}

type batchCreateResponse struct {
	NewMediaItemResults []newMediaItemResult `json:"newMediaItemResults"`
}

// UploadFile uploads one media item, optionally into a named album.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return "", err
	}

	albumID := ""
	if folderName != "" {
		alb, err := c.ensureAlbum(ctx, creds.AccessToken, folderName)
		if err != nil {
			return "", &api.FolderResolutionError{Provider: c.ProviderName(), Folder: folderName, Err: err}
		}
		albumID = alb.ID
	}

	token, err := c.uploadBytes(ctx, creds.AccessToken, file)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}

	results, err := c.batchCreate(ctx, creds.AccessToken, albumID, []newMediaItem{
		{SimpleMediaItem: simpleMediaItem{FileName: file.Name, UploadToken: token}},
	})
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	if len(results) == 0 || results[0].MediaItem == nil {
		msg := "media item creation rejected"
		if len(results) > 0 {
			msg = results[0].Status.Message
		}
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: fmt.Errorf("%s", msg)}
	}
	if url := results[0].MediaItem.ProductURL; url != "" {
		return url, nil
	}
	return landingURL, nil
}

// ExportFiles pushes all files into one flat album named after the
// request, reusing an existing album with that exact title. Set names are
// ignored: Photos has albums only, no nesting.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	if len(req.Files) == 0 {
		return nil, api.ErrNoFiles
	}
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}

	alb, err := c.ensureAlbum(ctx, creds.AccessToken, req.AlbumName)
	if err != nil {
		return nil, &api.FolderResolutionError{Provider: c.ProviderName(), Folder: req.AlbumName, Err: err}
	}

	statuses := make([]model.FileStatus, len(req.Files))
	errs := make([]error, len(req.Files))
	for i, f := range req.Files {
		statuses[i].Name = f.Name
	}

	// Phase one: raw byte uploads, collecting one token per surviving
	// file. A failed upload is recorded and the rest continue.
	type pending struct {
		index int
		item  newMediaItem
	}
	var queue []pending
	for i, f := range req.Files {
		token, err := c.uploadBytes(ctx, creds.AccessToken, f)
		if err != nil {
			uerr := &api.UploadError{Provider: c.ProviderName(), FileName: f.Name, Err: err}
			logger.WarningTagged([]string{"GooglePhotos"}, "Upload of %q failed: %v", f.Name, err)
			statuses[i].Error = uerr.Error()
			errs[i] = uerr
			continue
		}
		queue = append(queue, pending{
			index: i,
			item:  newMediaItem{SimpleMediaItem: simpleMediaItem{FileName: f.Name, UploadToken: token}},
		})
	}

	// Phase two: batched media item creation, at most 50 per call. The
	// batching is an efficiency measure; a single-item chunk behaves the
	// same.
	for start := 0; start < len(queue); start += maxCreateBatch {
		end := start + maxCreateBatch
		if end > len(queue) {
			end = len(queue)
		}
		chunk := queue[start:end]
		items := make([]newMediaItem, len(chunk))
		for j, p := range chunk {
			items[j] = p.item
		}
		results, err := c.batchCreate(ctx, creds.AccessToken, alb.ID, items)
		if err != nil {
			for _, p := range chunk {
				uerr := &api.UploadError{Provider: c.ProviderName(), FileName: req.Files[p.index].Name, Err: err}
				statuses[p.index].Error = uerr.Error()
				errs[p.index] = uerr
			}
			continue
		}
		for j, p := range chunk {
			if j < len(results) && results[j].MediaItem != nil {
				statuses[p.index].OK = true
				statuses[p.index].URL = results[j].MediaItem.ProductURL
				continue
			}
			msg := "media item creation rejected"
			if j < len(results) && results[j].Status.Message != "" {
				msg = results[j].Status.Message
			}
			uerr := &api.UploadError{Provider: c.ProviderName(), FileName: req.Files[p.index].Name, Err: fmt.Errorf("%s", msg)}
			statuses[p.index].Error = uerr.Error()
			errs[p.index] = uerr
		}
	}

	result := &model.ExportResult{Files: statuses}
	if result.Succeeded() == 0 {
		eerr := &api.ExportError{Provider: c.ProviderName()}
		for i := range req.Files {
			eerr.Failed = append(eerr.Failed, api.FileFailure{Name: req.Files[i].Name, Err: errs[i]})
		}
		return nil, eerr
	}

	result.URL = alb.ProductURL
	if result.URL == "" {
		for _, s := range statuses {
			if s.OK && s.URL != "" {
				result.URL = s.URL
				break
			}
		}
	}
	if result.URL == "" {
		result.URL = landingURL
	}
	logger.InfoTagged([]string{"GooglePhotos"}, "Exported %d of %d files to album %q", result.Succeeded(), len(req.Files), req.AlbumName)
	return result, nil
}

// ensureAlbum pages through the account's albums looking for an exact
// title match and only creates a new album when none exists.
func (c *Client) ensureAlbum(ctx context.Context, bearer, title string) (*album, error) {
	pageToken := ""
	for {
		url := fmt.Sprintf("%s/albums?pageSize=%d", c.apiBase, albumPageSize)
		if pageToken != "" {
			url += "&pageToken=" + pageToken
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+bearer)

		var page albumList
		if err := httpx.DoJSON(c.hc, req, &page); err != nil {
			return nil, fmt.Errorf("failed to list albums: %w", err)
		}
		for _, a := range page.Albums {
			if a.Title == title {
				logger.InfoTagged([]string{"GooglePhotos"}, "Reusing album %q (ID: %s)", title, a.ID)
				return &a, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	body := map[string]interface{}{"album": map[string]string{"title": title}}
	req, err := httpx.JSONRequest(ctx, http.MethodPost, c.apiBase+"/albums", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var created album
	if err := httpx.DoJSON(c.hc, req, &created); err != nil {
		return nil, fmt.Errorf("failed to create album: %w", err)
	}
	logger.InfoTagged([]string{"GooglePhotos"}, "Created album %q (ID: %s)", title, created.ID)
	return &created, nil
}

// uploadBytes streams the raw file body and returns the opaque upload
// token referencing it.
func (c *Client) uploadBytes(ctx context.Context, bearer string, file model.ExportFile) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/uploads", file.Content)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	if file.MimeType != "" {
		req.Header.Set("X-Goog-Upload-Content-Type", file.MimeType)
	}

	body, err := httpx.Do(c.up, req)
	if err != nil {
		return "", fmt.Errorf("byte upload failed: %w", err)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("byte upload returned an empty upload token")
	}
	return token, nil
}

func (c *Client) batchCreate(ctx context.Context, bearer, albumID string, items []newMediaItem) ([]newMediaItemResult, error) {
	body := map[string]interface{}{"newMediaItems": items}
	if albumID != "" {
		body["albumId"] = albumID
	}
	req, err := httpx.JSONRequest(ctx, http.MethodPost, c.apiBase+"/mediaItems:batchCreate", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var resp batchCreateResponse
	if err := httpx.DoJSON(c.hc, req, &resp); err != nil {
		return nil, fmt.Errorf("batch create failed: %w", err)
	}
	return resp.NewMediaItemResults, nil
}
