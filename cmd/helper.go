package cmd

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/config"
	"github.com/gallerio/cloud-export/internal/database"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/provider"
)

// openStore prompts for the master password and opens the config and the
// credentials database. Commands call this instead of each re-implementing
// the unlock sequence.
func openStore() (*config.AppConfig, *database.DB, error) {
	password, err := config.PromptMasterPassword(false)
	if err != nil {
		logger.Info("Operation cancelled.")
		os.Exit(0)
	}
	cfg, err := config.Load(password)
	if err != nil {
		return nil, nil, err
	}
	key, err := config.StoreKey(password)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(config.Dir(), key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open accounts database: %w", err)
	}
	return cfg, db, nil
}

// adapterFor resolves the adapter for a provider key using the configured
// OAuth client credentials.
func adapterFor(cfg *config.AppConfig, key string) (api.Client, error) {
	cc, ok := cfg.Providers[key]
	if !ok || cc.ID == "" {
		return nil, fmt.Errorf("no OAuth client configured for %q; run 'init' and supply its client id/secret", key)
	}
	return provider.New(key, cc)
}

// promptLine asks for one line of input.
func promptLine(label string) (string, error) {
	prompt := promptui.Prompt{Label: label}
	return prompt.Run()
}

func fatal(format string, v ...interface{}) {
	logger.Error(format, v...)
	os.Exit(1)
}
