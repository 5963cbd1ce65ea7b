// Package config loads and saves the encrypted application configuration:
// the OAuth client id/secret registered with each provider. Tokens for
// end-user accounts live in the database package, not here.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"

	"github.com/gallerio/cloud-export/internal/crypto"
	"github.com/gallerio/cloud-export/internal/provider"
)

const configFileName = "config.json.enc"

// AppConfig is the structure serialized into the encrypted config file.
type AppConfig struct {
	Providers map[string]provider.ClientCredentials `json:"providers"`
}

// Dir returns the directory holding the config, salt and database files:
// the directory of the running executable.
func Dir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

func configPath() string {
	return filepath.Join(Dir(), configFileName)
}

func saltPath() string {
	return filepath.Join(Dir(), crypto.SaltFileName)
}

// Load decrypts and loads the configuration using the master password.
func Load(masterPassword string) (*AppConfig, error) {
	salt, err := crypto.LoadSalt(saltPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("salt file not found; run the 'init' command first")
		}
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}
	key := crypto.DeriveKey(masterPassword, salt)

	ciphertext, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("config file not found; run the 'init' command first")
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	plaintext, err := crypto.Decrypt(ciphertext, key)
	if err != nil {
		return nil, errors.New("failed to decrypt config: master password may be incorrect")
	}

	var cfg AppConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]provider.ClientCredentials)
	}
	return &cfg, nil
}

// Save encrypts and writes the configuration. A salt file is created on
// first save.
func Save(masterPassword string, cfg *AppConfig) error {
	salt, err := crypto.LoadSalt(saltPath())
	if os.IsNotExist(err) {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := crypto.SaveSalt(salt, saltPath()); err != nil {
			return fmt.Errorf("failed to save salt: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read salt file: %w", err)
	}

	key := crypto.DeriveKey(masterPassword, salt)
	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt config: %w", err)
	}
	return os.WriteFile(configPath(), ciphertext, 0600)
}

// StoreKey derives the sealing key the database package uses, from the
// master password and the saved salt.
func StoreKey(masterPassword string) ([]byte, error) {
	salt, err := crypto.LoadSalt(saltPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}
	return crypto.DeriveKey(masterPassword, salt), nil
}

// PromptMasterPassword prompts for the master password without echoing.
func PromptMasterPassword(confirm bool) (string, error) {
	validate := func(input string) error {
		if len(input) < 8 {
			return errors.New("password must be at least 8 characters long")
		}
		return nil
	}

	prompt := promptui.Prompt{
		Label:    "Enter Master Password",
		Mask:     '*',
		Validate: validate,
	}
	password, err := prompt.Run()
	if err != nil {
		return "", err
	}

	if confirm {
		confirmPrompt := promptui.Prompt{
			Label:    "Confirm Master Password",
			Mask:     '*',
			Validate: validate,
		}
		confirmation, err := confirmPrompt.Run()
		if err != nil {
			return "", err
		}
		if password != confirmation {
			return "", errors.New("passwords do not match")
		}
	}
	return password, nil
}
