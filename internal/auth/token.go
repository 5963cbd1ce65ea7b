package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/model"
)

// WithHTTPClient routes all oauth2 token-endpoint traffic through hc.
// Adapters use it so token calls share their transport; tests use it to
// point exchanges at a local server.
func WithHTTPClient(ctx context.Context, hc *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}

// CodeURL builds the provider consent URL for the given state and
// redirect URI. Pure, no network.
func CodeURL(cfg *oauth2.Config, state, redirectURI string, opts ...oauth2.AuthCodeOption) string {
	c := *cfg
	c.RedirectURL = redirectURI
	return c.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a token pair. A non-2xx
// token-endpoint response becomes an *api.AuthExchangeError carrying the
// raw body.
func Exchange(ctx context.Context, provider string, cfg *oauth2.Config, code, redirectURI string) (*model.Credentials, error) {
	c := *cfg
	c.RedirectURL = redirectURI
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		status, body := retrieveDetails(err)
		return nil, &api.AuthExchangeError{Provider: provider, StatusCode: status, Body: body, Err: err}
	}
	return fromToken(tok, ""), nil
}

// Refresh trades a refresh token for a fresh access token. Failure is
// terminal (*api.AuthRefreshError): the caller must re-authorize, not
// retry. When the provider does not rotate the refresh token, the old one
// is carried forward so the caller always persists a usable pair.
func Refresh(ctx context.Context, provider string, cfg *oauth2.Config, refreshToken string) (*model.Credentials, error) {
	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		status, body := retrieveDetails(err)
		return nil, &api.AuthRefreshError{Provider: provider, StatusCode: status, Body: body, Err: err}
	}
	return fromToken(tok, refreshToken), nil
}

// Ensure guarantees creds carries an unexpired access token, refreshing
// in place when needed so a rotated refresh token is visible to the
// caller for persistence.
func Ensure(ctx context.Context, provider string, cfg *oauth2.Config, creds *model.Credentials) error {
	if creds == nil {
		return &api.AuthRefreshError{Provider: provider, Err: errors.New("no credentials available")}
	}
	if creds.Valid() {
		return nil
	}
	if creds.RefreshToken == "" {
		return &api.AuthRefreshError{Provider: provider, Err: errors.New("no refresh token available")}
	}
	fresh, err := Refresh(ctx, provider, cfg, creds.RefreshToken)
	if err != nil {
		return err
	}
	*creds = *fresh
	return nil
}

func fromToken(tok *oauth2.Token, fallbackRefresh string) *model.Credentials {
	creds := &model.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = fallbackRefresh
	}
	if creds.ExpiresAt.IsZero() {
		// Providers that omit expires_in get a conservative default.
		creds.ExpiresAt = time.Now().Add(time.Hour)
	}
	return creds
}

func retrieveDetails(err error) (int, string) {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return status, string(re.Body)
	}
	return 0, err.Error()
}
