package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <provider> <account>",
	Short: "Remove a linked account's stored credentials",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		providerKey, account := args[0], args[1]

		_, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		if err := db.DeleteAccount(account, model.Provider(providerKey)); err != nil {
			fatal("Failed to remove credentials: %v", err)
		}
		logger.InfoTagged([]string{providerKey, account}, "Account unlinked. Revoke the grant in the provider's security settings to fully disconnect.")
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
