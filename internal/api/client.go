package api

import (
	"context"

	"github.com/gallerio/cloud-export/internal/model"
)

// Client is the contract every provider adapter satisfies. The calling
// service holds the stored credentials for a (account, provider) pair and
// passes them into each call; adapters hold no per-account state beyond
// transient folder-id caches.
type Client interface {
	// ProviderName returns the adapter's provider key, e.g. "dropbox".
	ProviderName() string

	// SupportsArchiveUpload reports whether the provider accepts a zip
	// archive as a single upload.
	SupportsArchiveUpload() bool

	// AuthorizationURL builds the provider consent URL. Pure, no I/O.
	AuthorizationURL(state, redirectURI string) string

	// ExchangeCode trades an authorization code for a token pair. Non-2xx
	// responses surface as *AuthExchangeError.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*model.Credentials, error)

	// RefreshToken trades a refresh token for a fresh access token. Non-2xx
	// responses surface as *AuthRefreshError; callers must treat that as
	// terminal and re-authorize. The returned credentials may carry a
	// rotated refresh token which the caller must persist.
	RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error)

	// UploadFile uploads one file, optionally into a named folder, and
	// returns a durable shareable URL. Failures surface as *UploadError.
	UploadFile(ctx context.Context, creds *model.Credentials, file model.ExportFile, folderName string) (string, error)

	// ExportFiles pushes a whole album. Per-file failures are recorded in
	// the result and never abort the batch; an error is returned only when
	// the export cannot proceed at all or zero files succeed.
	ExportFiles(ctx context.Context, creds *model.Credentials, req model.ExportRequest) (*model.ExportResult, error)
}

// CredentialStore is the persistence collaborator owned by the calling
// application. The core calls it, never implements the caller's policy.
type CredentialStore interface {
	GetCredentials(account string, provider model.Provider) (*model.Credentials, error)
	PutCredentials(account string, provider model.Provider, creds *model.Credentials) error
}
