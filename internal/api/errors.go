package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoFiles is returned when an export request carries no files.
var ErrNoFiles = errors.New("export request contains no files")

// AuthExchangeError is a non-2xx response from a provider's token endpoint
// during the authorization-code exchange. It is terminal: the caller must
// send the user back through authorization.
type AuthExchangeError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("%s: code exchange failed (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// AuthRefreshError is a non-2xx response from a provider's token endpoint
// during an access-token refresh. Terminal, not retryable: the stored
// refresh token is no longer good and re-authorization is required.
type AuthRefreshError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("%s: token refresh failed (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *AuthRefreshError) Unwrap() error { return e.Err }

// UploadError is a failed upload of one file. Fatal for a single-file
// call; recorded per file and swallowed at the batch level.
type UploadError struct {
	Provider string
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: upload of %q failed: %v", e.Provider, e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// FolderResolutionError is a failure to find or create a container. Raised
// mid-batch it fails only the affected set's files; raised for the root
// container it fails the whole export.
type FolderResolutionError struct {
	Provider string
	Folder   string
	Err      error
}

func (e *FolderResolutionError) Error() string {
	return fmt.Sprintf("%s: could not resolve folder %q: %v", e.Provider, e.Folder, e.Err)
}

func (e *FolderResolutionError) Unwrap() error { return e.Err }

// FileFailure pairs a file name with the error that sank it.
type FileFailure struct {
	Name string
	Err  error
}

// ExportError is raised only when an entire export yields zero successful
// uploads. Partial-failure batches return a normal result instead.
type ExportError struct {
	Provider  string
	Succeeded int
	Failed    []FileFailure
}

func (e *ExportError) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("%s: export failed, no files uploaded", e.Provider)
	}
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%s: export failed, 0 of %d files uploaded (first cause: %v; failed: %s)",
		e.Provider, len(e.Failed), e.Failed[0].Err, strings.Join(names, ", "))
}

func (e *ExportError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}
