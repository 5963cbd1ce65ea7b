// Package google implements the Google Drive export adapter on the
// drive/v3 typed client.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/batch"
	"github.com/gallerio/cloud-export/internal/httpx"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	driveScope     = "https://www.googleapis.com/auth/drive"
	folderMimeType = "application/vnd.google-apps.folder"

	fileURLFormat   = "https://drive.google.com/file/d/%s/view"
	folderURLFormat = "https://drive.google.com/drive/folders/%s"
	landingURL      = "https://drive.google.com/drive/my-drive"
)

// Client is the Google Drive adapter.
type Client struct {
	oauth    *oauth2.Config
	hc       *http.Client
	endpoint string // overrides the Drive API endpoint, for tests
	limiter  *rate.Limiter

	mu      sync.Mutex
	folders map[string]string // "parentID/name" -> folder id
}

// NewClient builds a Drive adapter for the given OAuth application.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{driveScope},
			Endpoint:     googleoauth.Endpoint,
		},
		hc:      httpx.NewClient(),
		limiter: rate.NewLimiter(rate.Limit(8), 4),
		folders: make(map[string]string),
	}
}

func (c *Client) ProviderName() string { return string(model.ProviderGoogleDrive) }

func (c *Client) SupportsArchiveUpload() bool { return true }

// AuthorizationURL requests offline access with forced consent so a
// refresh token is always issued.
func (c *Client) AuthorizationURL(state, redirectURI string) string {
	return auth.CodeURL(c.oauth, state, redirectURI, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*model.Credentials, error) {
	return auth.Exchange(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, code, redirectURI)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	return auth.Refresh(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, refreshToken)
}

// service builds a per-call drive.Service after making sure the access
// token has not expired.
func (c *Client) service(ctx context.Context, creds *model.Credentials) (*drive.Service, error) {
	if err := auth.Ensure(auth.WithHTTPClient(ctx, c.hc), c.ProviderName(), c.oauth, creds); err != nil {
		return nil, err
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return svc, nil
}

// UploadFile uploads one file, optionally into a root-level folder, and
// returns an anyone-with-link URL for it.
func (c *Client) UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return "", err
	}

	parentID := "root"
	if folderName != "" {
		parentID, err = c.ensureFolder(ctx, svc, "root", folderName)
		if err != nil {
			return "", &api.FolderResolutionError{Provider: c.ProviderName(), Folder: folderName, Err: err}
		}
		if err := c.shareAnyone(ctx, svc, parentID); err != nil {
			logger.WarningTagged([]string{"GoogleDrive"}, "Failed to share folder %s: %v", parentID, err)
		}
	}

	fileID, err := c.uploadInto(ctx, svc, parentID, file)
	if err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	if err := c.shareAnyone(ctx, svc, fileID); err != nil {
		return "", &api.UploadError{Provider: c.ProviderName(), FileName: file.Name, Err: err}
	}
	return fmt.Sprintf(fileURLFormat, fileID), nil
}

// ExportFiles pushes a whole album into a folder tree: one root folder
// named after the album, one subfolder per set. The root folder is shared
// anyone-with-link after the uploads so the returned URL works for the
// collection owner's clients.
func (c *Client) ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	return batch.Run(ctx, batch.Target{
		Provider: c.ProviderName(),
		ResolveRoot: func(ctx context.Context) (string, error) {
			return c.ensureFolder(ctx, svc, "root", req.AlbumName)
		},
		ResolveSet: func(ctx context.Context, rootID, set string) (string, error) {
			return c.ensureFolder(ctx, svc, rootID, set)
		},
		Upload: func(ctx context.Context, containerID string, file model.ExportFile) (string, error) {
			// Files inherit the root folder's anyone-with-link grant, so
			// no per-file permission call is needed here.
			fileID, err := c.uploadInto(ctx, svc, containerID, file)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(fileURLFormat, fileID), nil
		},
		ContainerURL: func(ctx context.Context, rootID string) (string, error) {
			if err := c.shareAnyone(ctx, svc, rootID); err != nil {
				return "", err
			}
			return fmt.Sprintf(folderURLFormat, rootID), nil
		},
		FallbackURL: landingURL,
		Limiter:     c.limiter,
	}, req)
}

// ensureFolder reuses a folder by exact name under parentID, creating it
// only when the lookup comes back empty. Resolved ids are cached for the
// client's lifetime so repeated calls never duplicate creation calls.
func (c *Client) ensureFolder(ctx context.Context, svc *drive.Service, parentID, name string) (string, error) {
	cacheKey := parentID + "/" + name
	c.mu.Lock()
	if id, ok := c.folders[cacheKey]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMimeType, parentID)
	list, err := svc.Files.List().Context(ctx).Q(query).Fields("files(id, name)").PageSize(10).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search for folder: %w", err)
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
		logger.InfoTagged([]string{"GoogleDrive"}, "Reusing folder %q (ID: %s)", name, id)
	} else {
		created, err := svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: folderMimeType,
			Parents:  []string{parentID},
		}).Context(ctx).Fields("id").Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder: %w", err)
		}
		id = created.Id
		logger.InfoTagged([]string{"GoogleDrive"}, "Created folder %q (ID: %s)", name, id)
	}

	c.mu.Lock()
	c.folders[cacheKey] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) uploadInto(ctx context.Context, svc *drive.Service, parentID string, file model.ExportFile) (string, error) {
	meta := &drive.File{
		Name:    file.Name,
		Parents: []string{parentID},
	}
	call := svc.Files.Create(meta).Context(ctx).Fields("id")
	if file.MimeType != "" {
		call = call.Media(file.Content, googleapi.ContentType(file.MimeType))
	} else {
		call = call.Media(file.Content)
	}
	created, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return created.Id, nil
}

// shareAnyone grants anyone-with-link read access.
func (c *Client) shareAnyone(ctx context.Context, svc *drive.Service, itemID string) error {
	_, err := svc.Permissions.Create(itemID, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`)
}
