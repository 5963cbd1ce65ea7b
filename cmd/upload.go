package cmd

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

var uploadFolder string

var uploadCmd = &cobra.Command{
	Use:   "upload <provider> <account> <file>",
	Short: "Upload a single file to a linked account",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		providerKey, account, path := args[0], args[1], args[2]

		cfg, db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		client, err := adapterFor(cfg, providerKey)
		if err != nil {
			fatal("%v", err)
		}
		creds, err := db.GetCredentials(account, model.Provider(client.ProviderName()))
		if err != nil {
			fatal("No credentials for %s on %s: %v", account, providerKey, err)
		}

		f, err := os.Open(path)
		if err != nil {
			fatal("Failed to open %s: %v", path, err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			fatal("Failed to stat %s: %v", path, err)
		}

		file := model.ExportFile{
			Name:     filepath.Base(path),
			Content:  f,
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
			Size:     info.Size(),
		}

		url, err := client.UploadFile(context.Background(), creds, file, uploadFolder)
		// The adapter may have refreshed the token in place; persist
		// either way so a rotated refresh token is not lost.
		if perr := db.PutCredentials(account, model.Provider(client.ProviderName()), creds); perr != nil {
			logger.Warning("Failed to persist refreshed credentials: %v", perr)
		}
		if err != nil {
			fatal("Upload failed: %v", err)
		}
		logger.InfoTagged([]string{client.ProviderName(), account}, "Uploaded %s", file.Name)
		logger.Info("%s", url)
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFolder, "folder", "f", "", "Remote folder to upload into")
	rootCmd.AddCommand(uploadCmd)
}
