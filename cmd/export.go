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

var exportAlbum string

var exportCmd = &cobra.Command{
	Use:   "export <provider> <account> <dir>",
	Short: "Export a directory of sets to a linked account",
	Long: `Export pushes a whole directory to the provider. Each immediate
subdirectory of <dir> becomes a set inside the album; files directly in
<dir> go to the album root. The album name defaults to the directory
name.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		providerKey, account, dir := args[0], args[1], args[2]

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

		album := exportAlbum
		if album == "" {
			album = filepath.Base(dir)
		}

		files, closeAll, err := collectFiles(dir)
		if err != nil {
			fatal("%v", err)
		}
		defer closeAll()

		result, err := client.ExportFiles(context.Background(), creds, model.ExportRequest{
			AlbumName: album,
			Files:     files,
		})
		if perr := db.PutCredentials(account, model.Provider(client.ProviderName()), creds); perr != nil {
			logger.Warning("Failed to persist refreshed credentials: %v", perr)
		}
		if err != nil {
			fatal("Export failed: %v", err)
		}

		for _, s := range result.Files {
			if s.OK {
				logger.Info("  ok   %s", s.Name)
			} else {
				logger.Warning("  fail %s: %s", s.Name, s.Error)
			}
		}
		logger.Info("Exported %d of %d files.", result.Succeeded(), len(result.Files))
		logger.Info("%s", result.URL)
	},
}

// collectFiles builds the export file list: top-level files with no set,
// one set per immediate subdirectory. The returned closer releases all
// opened files.
func collectFiles(dir string) ([]model.ExportFile, func(), error) {
	var files []model.ExportFile
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	add := func(path, set string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		opened = append(opened, f)
		files = append(files, model.ExportFile{
			Name:     filepath.Base(path),
			Content:  f,
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
			Set:      set,
			Size:     info.Size(),
		})
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, closeAll, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			if err := add(filepath.Join(dir, e.Name()), ""); err != nil {
				closeAll()
				return nil, func() {}, err
			}
			continue
		}
		sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		for _, s := range sub {
			if s.IsDir() {
				continue
			}
			if err := add(filepath.Join(dir, e.Name(), s.Name()), e.Name()); err != nil {
				closeAll()
				return nil, func() {}, err
			}
		}
	}
	return files, closeAll, nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportAlbum, "album", "a", "", "Album name (defaults to the directory name)")
	rootCmd.AddCommand(exportCmd)
}
