// Package batch implements the provider-independent half of a multi-file
// export: grouping files into sets, resolving each set's container exactly
// once, running uploads through a bounded worker pool, and turning the
// per-file outcomes into one ExportResult. The provider-specific half is
// supplied as a Target of callbacks.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/logger"
	"github.com/gallerio/cloud-export/internal/model"
)

// DefaultConcurrency bounds parallel uploads toward one provider account.
const DefaultConcurrency = 4

// Target describes one provider's container and upload mechanics.
type Target struct {
	// Provider is the adapter's provider key, used in errors and logs.
	Provider string

	// ResolveRoot finds or creates the album's root container and returns
	// its id (or path, for path-addressed providers). A failure here fails
	// the whole export.
	ResolveRoot func(ctx context.Context) (string, error)

	// ResolveSet finds or creates the container for one set under the
	// root. Called exactly once per distinct set, before any upload into
	// that set begins. Never called for the empty set: those files go
	// straight into the root container.
	ResolveSet func(ctx context.Context, rootID, set string) (string, error)

	// Upload pushes one file into its resolved container and returns its
	// shareable URL ("" when the provider has none at the file level).
	Upload func(ctx context.Context, containerID string, file model.ExportFile) (string, error)

	// ContainerURL fetches or constructs the root container's shareable
	// URL. Called after all uploads; optional.
	ContainerURL func(ctx context.Context, rootID string) (string, error)

	// FallbackURL is the provider landing page, used when neither a
	// container URL nor any file URL is available.
	FallbackURL string

	// Concurrency overrides DefaultConcurrency when positive.
	Concurrency int

	// Limiter, when set, paces upload starts toward the provider.
	Limiter *rate.Limiter
}

type group struct {
	set     string
	indexes []int
}

// Run executes one export against the target. Per-file failures are
// recorded and never abort the batch; the returned error is non-nil only
// when the export cannot start or zero files succeed.
func Run(ctx context.Context, t Target, req model.ExportRequest) (*model.ExportResult, error) {
	if len(req.Files) == 0 {
		return nil, api.ErrNoFiles
	}

	rootID, err := t.ResolveRoot(ctx)
	if err != nil {
		return nil, &api.FolderResolutionError{Provider: t.Provider, Folder: req.AlbumName, Err: err}
	}

	// Group by set, preserving first-seen order.
	var groups []group
	byName := make(map[string]int)
	for i, f := range req.Files {
		gi, ok := byName[f.Set]
		if !ok {
			gi = len(groups)
			byName[f.Set] = gi
			groups = append(groups, group{set: f.Set})
		}
		groups[gi].indexes = append(groups[gi].indexes, i)
	}

	statuses := make([]model.FileStatus, len(req.Files))
	errs := make([]error, len(req.Files))
	for i, f := range req.Files {
		statuses[i].Name = f.Name
	}

	concurrency := t.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, grp := range groups {
		// Container resolution is a barrier: no upload into this set
		// starts before its container id is known.
		containerID := rootID
		if grp.set != "" {
			containerID, err = t.ResolveSet(ctx, rootID, grp.set)
			if err != nil {
				ferr := &api.FolderResolutionError{Provider: t.Provider, Folder: grp.set, Err: err}
				logger.WarningTagged([]string{t.Provider}, "Skipping set %q: %v", grp.set, err)
				mu.Lock()
				for _, i := range grp.indexes {
					statuses[i].Error = ferr.Error()
					errs[i] = ferr
				}
				mu.Unlock()
				continue
			}
		}

		for _, i := range grp.indexes {
			i := i
			file := req.Files[i]
			target := containerID
			g.Go(func() error {
				if t.Limiter != nil {
					if err := t.Limiter.Wait(ctx); err != nil {
						mu.Lock()
						statuses[i].Error = err.Error()
						errs[i] = err
						mu.Unlock()
						return nil
					}
				}
				url, err := t.Upload(ctx, target, file)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					uerr := &api.UploadError{Provider: t.Provider, FileName: file.Name, Err: err}
					logger.WarningTagged([]string{t.Provider}, "Upload of %q failed: %v", file.Name, err)
					statuses[i].Error = uerr.Error()
					errs[i] = uerr
					return nil
				}
				statuses[i].OK = true
				statuses[i].URL = url
				return nil
			})
		}
	}

	g.Wait()

	result := &model.ExportResult{Files: statuses}
	if result.Succeeded() == 0 {
		eerr := &api.ExportError{Provider: t.Provider}
		for i := range req.Files {
			eerr.Failed = append(eerr.Failed, api.FileFailure{Name: req.Files[i].Name, Err: errs[i]})
		}
		return nil, eerr
	}

	result.URL = resolveResultURL(ctx, t, rootID, statuses)
	logger.InfoTagged([]string{t.Provider}, "Exported %d of %d files to %q", result.Succeeded(), len(req.Files), req.AlbumName)
	return result, nil
}

func resolveResultURL(ctx context.Context, t Target, rootID string, statuses []model.FileStatus) string {
	if t.ContainerURL != nil {
		url, err := t.ContainerURL(ctx, rootID)
		if err != nil {
			logger.WarningTagged([]string{t.Provider}, "Could not resolve container URL: %v", err)
		} else if url != "" {
			return url
		}
	}
	for _, s := range statuses {
		if s.OK && s.URL != "" {
			return s.URL
		}
	}
	return t.FallbackURL
}
