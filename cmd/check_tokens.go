package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

var checkTokensCmd = &cobra.Command{
	Use:   "check-tokens",
	Short: "Refresh every linked account's tokens and report the dead ones",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		accounts, err := db.ListAccounts()
		if err != nil {
			fatal("Failed to list accounts: %v", err)
		}
		if len(accounts) == 0 {
			logger.Info("No linked accounts. Use 'cloud-export connect <provider>' first.")
			return
		}

		ctx := context.Background()
		for _, acc := range accounts {
			client, err := adapterFor(cfg, string(acc.Provider))
			if err != nil {
				logger.WarningTagged([]string{string(acc.Provider), acc.Name}, "Skipped: %v", err)
				continue
			}
			creds, err := db.GetCredentials(acc.Name, acc.Provider)
			if err != nil {
				logger.WarningTagged([]string{string(acc.Provider), acc.Name}, "Skipped: %v", err)
				continue
			}
			fresh, err := client.RefreshToken(ctx, creds.RefreshToken)
			if err != nil {
				logger.ErrorTagged([]string{string(acc.Provider), acc.Name},
					"Token is dead, re-link with 'connect': %v", err)
				continue
			}
			if err := db.PutCredentials(acc.Name, model.Provider(client.ProviderName()), fresh); err != nil {
				fatal("Failed to store refreshed credentials: %v", err)
			}
			logger.InfoTagged([]string{string(acc.Provider), acc.Name},
				"Token is valid (expires %s).", fresh.ExpiresAt.Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	rootCmd.AddCommand(checkTokensCmd)
}
