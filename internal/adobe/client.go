// Package adobe implements the Creative Cloud storage export adapter.
// Files are raw-PUT to a path-like key under the account's file
// namespace; the path prefix doubles as the folder, so no container
// creation calls exist. API calls carry the OAuth bearer token plus the
// client id in the x-api-key header, as Adobe's gateway requires.
package adobe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

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
	defaultAPIBase = "https://cc-api-storage.adobe.io"
	authURL        = "https://ims-na1.adobelogin.com/ims/authorize/v2"
	tokenURL       = "https://ims-na1.adobelogin.com/ims/token/v3"
	landingURL     = "https://assets.adobe.com/files"
)

// Client is the Creative Cloud adapter.
type Client struct {
	oauth   *oauth2.Config
	hc      *http.Client
	up      *http.Client
	apiBase string
	limiter *rate.Limiter
}

// NewClient builds a Creative Cloud adapter for the given OAuth
// application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "creative_sdk", "offline_access"},
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		hc:      httpx.NewClient(),
		up:      httpx.NewUploadClient(),
		apiBase: defaultAPIBase,
		limiter: rate.NewLimiter(rate.Limit(8), 4),
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderAdobeCC) }

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

// UploadFile uploads one file, optionally under a folder prefix, and
// returns the stored file's link, falling back to the Creative Cloud
// assets page when the metadata carries none.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return "", err
	}
	key := file.Name
	if folderName != "" {
		key = folderName + "/" + file.Name
	}
	if err := c.put(ctx, creds.AccessToken, key, file); err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	return c.fileLink(ctx, creds.AccessToken, key), nil
}

// ExportFiles uploads the album under <album>/<set>/<name> keys. The
// path prefix is the container, so set resolution is pure string work.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}

	return batch.Run(ctx, batch.Target{
		Provider: c.ProviderName(),
		ResolveRoot: func(ctx context.Context) (string, error) {
			return req.AlbumName, nil
		},
		ResolveSet: func(ctx context.Context, rootKey, set string) (string, error) {
			return rootKey + "/" + set, nil
		},
		Upload: func(ctx context.Context, containerKey string, file model.ExportFile) (string, error) {
			key := containerKey + "/" + file.Name
			if err := c.put(ctx, creds.AccessToken, key, file); err != nil {
				return "", err
			}
			return c.fileLink(ctx, creds.AccessToken, key), nil
		},
		FallbackURL: landingURL,
		Limiter:     c.limiter,
	}, req)
}

// put streams the raw body to the file key.
func (c *Client) put(ctx context.Context, bearer, key string, file model.ExportFile) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.apiBase+"/files/"+escapeKey(key), file.Content)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("x-api-key", c.oauth.ClientID)
	if file.MimeType != "" {
		req.Header.Set("Content-Type", file.MimeType)
	} else {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	if _, err := httpx.Do(c.up, req); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

type fileMetadata struct {
	Link string `json:"link"`
}

// fileLink fetches the stored file's link field. Link resolution is
// best-effort only: any failure falls back to the generic assets page
// rather than sinking an upload that already succeeded.
func (c *Client) fileLink(ctx context.Context, bearer, key string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/files/"+escapeKey(key), nil)
	if err != nil {
		return landingURL
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("x-api-key", c.oauth.ClientID)
	req.Header.Set("Accept", "application/json")

	var meta fileMetadata
	if err := httpx.DoJSON(c.hc, req, &meta); err != nil {
		logger.WarningTagged([]string{"AdobeCC"}, "Could not fetch link for %q: %v", key, err)
		return landingURL
	}
	if meta.Link == "" {
		return landingURL
	}
	return meta.Link
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
