package model

import (
	"io"
	"time"
)

// Provider identifies a cloud storage provider.
type Provider string

const (
	ProviderGoogleDrive  Provider = "googledrive"
	ProviderGooglePhotos Provider = "googlephotos"
	ProviderDropbox      Provider = "dropbox"
	ProviderOneDrive     Provider = "onedrive"
	ProviderBox          Provider = "box"
	ProviderAdobeCC      Provider = "adobecc"
)

// Credentials is one OAuth token set for a (account, provider) pair.
// The core never persists it; the caller stores it and must re-persist
// after every refresh because providers may rotate the refresh token.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token can still be sent. A small skew
// keeps a token that would expire mid-request from being used at all.
func (c *Credentials) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(30 * time.Second).Before(c.ExpiresAt)
}

// ExportFile describes one file to push to a provider. Set is the logical
// subgroup the file belongs to within the export; an empty Set places the
// file directly in the album root.
type ExportFile struct {
	Name     string
	Content  io.Reader
	MimeType string
	Set      string
	Size     int64
}

// ExportRequest is one batch export of an album's files.
type ExportRequest struct {
	AlbumName string
	Files     []ExportFile
}

// FileStatus is the per-file outcome of a batch export.
type FileStatus struct {
	Name  string
	OK    bool
	URL   string
	Error string
}

// ExportResult is returned by every successful batch export. URL is
// best-effort: the container URL when the provider exposes one, else the
// first successfully uploaded file's URL, else the provider landing page.
// It is never empty on success.
type ExportResult struct {
	URL   string
	Files []FileStatus
}

// Succeeded counts the files that uploaded.
func (r *ExportResult) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.OK {
			n++
		}
	}
	return n
}

// Capability is static per-provider metadata, known at compile time.
type Capability struct {
	Provider      Provider
	ArchiveUpload bool
}
