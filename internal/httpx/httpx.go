// Package httpx carries the small HTTP plumbing shared by the raw REST
// provider adapters: status checking, JSON round-trips and the two shared
// timeout policies (short for metadata calls, long for file bodies).
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	metadataTimeout = 30 * time.Second
	uploadTimeout   = 15 * time.Minute

	// maxErrorBody caps how much of an error response is kept for
	// diagnostics.
	maxErrorBody = 4 << 10
)

// NewClient returns the client for metadata calls (folder lookup/create,
// share links, token endpoints).
func NewClient() *http.Client {
	return &http.Client{Timeout: metadataTimeout}
}

// NewUploadClient returns the client for file-body transfers.
func NewUploadClient() *http.Client {
	return &http.Client{Timeout: uploadTimeout}
}

// StatusError is a non-2xx provider response with the (truncated) body
// kept for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == code
}

// JSONRequest builds a request whose body is v marshalled as JSON.
func JSONRequest(ctx context.Context, method, url string, v interface{}) (*http.Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Do executes the request and returns the raw body, mapping any non-2xx
// response to a *StatusError.
func Do(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return io.ReadAll(resp.Body)
}

// DoJSON executes the request and decodes a 2xx JSON response into out.
// out may be nil when the caller only cares about the status.
func DoJSON(hc *http.Client, req *http.Request, out interface{}) error {
	body, err := Do(hc, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
