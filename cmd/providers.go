package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and their capabilities",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range provider.Names() {
			cap, _ := provider.Capabilities(name)
			archive := "no"
			if cap.ArchiveUpload {
				archive = "yes"
			}
			logger.Info("%-14s archive upload: %s", name, archive)
		}
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
