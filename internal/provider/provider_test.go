package provider

import (
	"sort"
	"testing"
)

func TestNewResolvesAllProviders(t *testing.T) {
	cc := ClientCredentials{ID: "id", Secret: "secret"}
	for _, key := range Names() {
		client, err := New(key, cc)
		if err != nil {
			t.Errorf("New(%q): %v", key, err)
			continue
		}
		if client.ProviderName() != key {
			t.Errorf("New(%q).ProviderName() = %q", key, client.ProviderName())
		}
	}
}

func TestNewIsCaseInsensitive(t *testing.T) {
	client, err := New("GoogleDrive", ClientCredentials{ID: "id"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.ProviderName() != "googledrive" {
		t.Errorf("ProviderName() = %q", client.ProviderName())
	}
}

func TestNewUnknownKey(t *testing.T) {
	if _, err := New("megaupload", ClientCredentials{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 6 {
		t.Fatalf("Names() = %v, want 6 entries", names)
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() not sorted: %v", names)
	}
}

func TestCapabilities(t *testing.T) {
	cap, ok := Capabilities("googlephotos")
	if !ok {
		t.Fatal("googlephotos capability missing")
	}
	if cap.ArchiveUpload {
		t.Error("googlephotos must not accept archive uploads")
	}
	if cap, ok := Capabilities("DROPBOX"); !ok || !cap.ArchiveUpload {
		t.Errorf("dropbox capability = %+v, %v", cap, ok)
	}
	if _, ok := Capabilities("nope"); ok {
		t.Error("unknown key reported as known")
	}
}

func TestAdaptersMatchCapabilityFlags(t *testing.T) {
	for _, key := range Names() {
		client, err := New(key, ClientCredentials{ID: "id"})
		if err != nil {
			t.Fatalf("New(%q): %v", key, err)
		}
		cap, _ := Capabilities(key)
		if client.SupportsArchiveUpload() != cap.ArchiveUpload {
			t.Errorf("%s: SupportsArchiveUpload() = %v, capability says %v",
				key, client.SupportsArchiveUpload(), cap.ArchiveUpload)
		}
	}
}
