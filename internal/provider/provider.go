// Package provider resolves provider keys to concrete adapters.
package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gallerio/cloud-export/internal/adobe"
	"github.com/gallerio/cloud-export/internal/api"
	"github.com/gallerio/cloud-export/internal/box"
	"github.com/gallerio/cloud-export/internal/dropbox"
	"github.com/gallerio/cloud-export/internal/google"
	"github.com/gallerio/cloud-export/internal/model"
	"github.com/gallerio/cloud-export/internal/onedrive"
	"github.com/gallerio/cloud-export/internal/photos"
)

// ClientCredentials is one provider's OAuth application id and secret.
type ClientCredentials struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

var capabilities = map[model.Provider]model.Capability{
	model.ProviderGoogleDrive:  {Provider: model.ProviderGoogleDrive, ArchiveUpload: true},
	model.ProviderGooglePhotos: {Provider: model.ProviderGooglePhotos, ArchiveUpload: false},
	model.ProviderDropbox:      {Provider: model.ProviderDropbox, ArchiveUpload: true},
	model.ProviderOneDrive:     {Provider: model.ProviderOneDrive, ArchiveUpload: true},
	model.ProviderBox:          {Provider: model.ProviderBox, ArchiveUpload: true},
	model.ProviderAdobeCC:      {Provider: model.ProviderAdobeCC, ArchiveUpload: true},
}

// New returns the adapter for a provider key. The key is matched
// case-insensitively against the known provider names.
func New(key string, cc ClientCredentials) (api.Client, error) {
	switch model.Provider(strings.ToLower(key)) {
	case model.ProviderGoogleDrive:
		return google.NewClient(cc.ID, cc.Secret), nil
	case model.ProviderGooglePhotos:
		return photos.NewClient(cc.ID, cc.Secret), nil
	case model.ProviderDropbox:
		return dropbox.NewClient(cc.ID, cc.Secret), nil
	case model.ProviderOneDrive:
		return onedrive.NewClient(cc.ID, cc.Secret), nil
	case model.ProviderBox:
		return box.NewClient(cc.ID, cc.Secret), nil
	case model.ProviderAdobeCC:
		return adobe.NewClient(cc.ID, cc.Secret), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", key)
	}
}

// Names returns the known provider keys, sorted.
func Names() []string {
	names := make([]string, 0, len(capabilities))
	for p := range capabilities {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the static capability descriptor for a provider
// key, or false when the key is unknown.
func Capabilities(key string) (model.Capability, bool) {
	cap, ok := capabilities[model.Provider(strings.ToLower(key))]
	return cap, ok
}
