package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

const (
	// RedirectURL is the local callback the CLI flow listens on.
	RedirectURL = "http://localhost:8080/callback"

	callbackAddr = ":8080"
	flowTimeout  = 5 * time.Minute
)

// PerformFlow walks a user through the authorization-code flow for one
// provider: prints the consent URL, waits for the local callback, then
// exchanges the code. Used by the CLI, never by the library core.
func PerformFlow(ctx context.Context, client api.Client) (*model.Credentials, error) {
	state := uuid.NewString()
	authURL := client.AuthorizationURL(state, RedirectURL)

	logger.Info("Please visit this URL to authorize %s access:", client.ProviderName())
	logger.Info("%s", authURL)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- errors.New("state mismatch")
			fmt.Fprint(w, "Error: state mismatch. You can close this window.")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- errors.New("no authorization code received")
			fmt.Fprint(w, "Error: no authorization code received. You can close this window.")
			return
		}
		codeChan <- code
		fmt.Fprint(w, "Authorization successful! You can close this window and return to the terminal.")
	})

	server := &http.Server{Addr: callbackAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(flowTimeout):
		return nil, fmt.Errorf("authorization flow timed out after %s", flowTimeout)
	}

	creds, err := client.ExchangeCode(ctx, code, RedirectURL)
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		logger.Warning("No refresh token received; the provider may require re-consent when the access token expires.")
	}
	return creds, nil
}
