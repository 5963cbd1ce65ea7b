package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/logger"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cloud-export",
	Short: "Export collections and sets to a client's own cloud storage account.",
	Long: `cloud-export pushes batches of files into a linked Google Drive, Google
Photos, Dropbox, OneDrive, Box or Adobe Creative Cloud account, creating
the album and set folders on the remote side and returning one shareable
URL for the export.

The OAuth client configuration is stored encrypted (config.json.enc) next
to the executable, protected by a master password; linked account tokens
live in accounts.db, sealed with the same key.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.LogLevelDebug)
		}
	},
}

// Execute is the entry point for the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
