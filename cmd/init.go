package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/config"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/provider"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the encrypted configuration with each provider's OAuth client",
	Run: func(cmd *cobra.Command, args []string) {
		password, err := config.PromptMasterPassword(true)
		if err != nil {
			fatal("Failed to read master password: %v", err)
		}

		cfg := &config.AppConfig{Providers: make(map[string]provider.ClientCredentials)}
		for _, name := range provider.Names() {
			logger.Info("OAuth client for %s (leave the id empty to skip):", name)
			id, err := promptLine(name + " client id")
			if err != nil {
				fatal("Cancelled: %v", err)
			}
			if id == "" {
				continue
			}
			secret, err := promptLine(name + " client secret")
			if err != nil {
				fatal("Cancelled: %v", err)
			}
			cfg.Providers[name] = provider.ClientCredentials{ID: id, Secret: secret}
		}

		if err := config.Save(password, cfg); err != nil {
			fatal("Failed to save config: %v", err)
		}
		logger.Info("Configuration saved. Link an account with 'cloud-export connect <provider>'.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
