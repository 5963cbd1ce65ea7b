package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/auth"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Link a cloud storage account via the browser authorization flow",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		providerKey := args[0]

		cfg, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		client, err := adapterFor(cfg, providerKey)
		if err != nil {
			fatal("%v", err)
		}

		creds, err := auth.PerformFlow(context.Background(), client)
		if err != nil {
			fatal("Authorization failed: %v", err)
		}

		account, err := promptLine("Account label (e.g. the account's email)")
		if err != nil || account == "" {
			fatal("An account label is required to store the credentials.")
		}

		if err := db.PutCredentials(account, model.Provider(client.ProviderName()), creds); err != nil {
			fatal("Failed to store credentials: %v", err)
		}
		logger.InfoTagged([]string{client.ProviderName(), account}, "Account linked.")
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
