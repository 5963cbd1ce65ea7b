package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gallerio/cloud-export/internal/crypto"
	"github.com/gallerio/cloud-export/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	db, err := Open(t.TempDir(), crypto.DeriveKey("test-password", salt))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCredentialsRoundtrip(t *testing.T) {
	db := openTestDB(t)

	want := &model.Credentials{
		AccessToken:  "at-secret",
		RefreshToken: "rt-secret",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := db.PutCredentials("alice", model.ProviderBox, want); err != nil {
		t.Fatalf("PutCredentials: %v", err)
	}

	got, err := db.GetCredentials("alice", model.ProviderBox)
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
}

func TestGetCredentialsNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetCredentials("nobody", model.ProviderDropbox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutCredentialsUpsert(t *testing.T) {
	db := openTestDB(t)

	first := &model.Credentials{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now()}
	if err := db.PutCredentials("alice", model.ProviderOneDrive, first); err != nil {
		t.Fatal(err)
	}
	second := &model.Credentials{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.PutCredentials("alice", model.ProviderOneDrive, second); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCredentials("alice", model.ProviderOneDrive)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "at-2" || got.RefreshToken != "rt-2" {
		t.Errorf("upsert did not replace: %+v", got)
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Errorf("ListAccounts() = %v, want single row after upsert", accounts)
	}
}

func TestSameAccountDifferentProviders(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutCredentials("alice", model.ProviderBox, &model.Credentials{AccessToken: "at-box"}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutCredentials("alice", model.ProviderDropbox, &model.Credentials{AccessToken: "at-dbx"}); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetCredentials("alice", model.ProviderDropbox)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "at-dbx" {
		t.Errorf("AccessToken = %q", got.AccessToken)
	}
}

func TestTokensSealedOnDisk(t *testing.T) {
	dir := t.TempDir()
	salt, _ := crypto.GenerateSalt()
	db, err := Open(dir, crypto.DeriveKey("pw", salt))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.PutCredentials("alice", model.ProviderBox, &model.Credentials{
		AccessToken:  "super-secret-access-token",
		RefreshToken: "super-secret-refresh-token",
	}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	raw, err := os.ReadFile(filepath.Join(dir, DBFileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "super-secret-access-token") {
		t.Error("access token stored in cleartext")
	}
	if strings.Contains(string(raw), "super-secret-refresh-token") {
		t.Error("refresh token stored in cleartext")
	}
}

func TestDeleteAccount(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutCredentials("alice", model.ProviderBox, &model.Credentials{AccessToken: "at"}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteAccount("alice", model.ProviderBox); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetCredentials("alice", model.ProviderBox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
}
