// Package database persists linked-account credentials in a local SQLite
// store. Tokens are sealed with the config key before they touch disk, so
// the database file alone leaks nothing.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gallerio/cloud-export/internal/crypto"
	"github.com/gallerio/cloud-export/internal/model"
)

// DBFileName is the database file, created next to the config file.
const DBFileName = "accounts.db"

// ErrNotFound is returned when no credentials are stored for the
// (account, provider) pair.
var ErrNotFound = errors.New("no stored credentials")

// DB is the credentials store. It implements api.CredentialStore.
type DB struct {
	conn *sql.DB
	key  []byte
}

// Open opens (or creates) the store in dir, sealing tokens with key.
func Open(dir string, key []byte) (*DB, error) {
	path := filepath.Join(dir, DBFileName)
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, key: key}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		account TEXT NOT NULL,
		provider TEXT NOT NULL,
		access_token BLOB NOT NULL,
		refresh_token BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (account, provider)
	);`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetCredentials loads and unseals the token pair for an account.
func (db *DB) GetCredentials(account string, p model.Provider) (*model.Credentials, error) {
	row := db.conn.QueryRow(
		`SELECT access_token, refresh_token, expires_at FROM accounts WHERE account = ? AND provider = ?`,
		account, string(p))

	var accessSealed, refreshSealed []byte
	var expiresAt int64
	if err := row.Scan(&accessSealed, &refreshSealed, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	access, err := crypto.Decrypt(accessSealed, db.key)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal access token: %w", err)
	}
	refresh, err := crypto.Decrypt(refreshSealed, db.key)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal refresh token: %w", err)
	}

	return &model.Credentials{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		ExpiresAt:    time.Unix(expiresAt, 0),
	}, nil
}

// PutCredentials seals and stores the token pair, replacing any previous
// pair for the (account, provider). Callers must invoke this after every
// successful exchange or refresh so rotated refresh tokens survive.
func (db *DB) PutCredentials(account string, p model.Provider, creds *model.Credentials) error {
	access, err := crypto.Encrypt([]byte(creds.AccessToken), db.key)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err := crypto.Encrypt([]byte(creds.RefreshToken), db.key)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO accounts (account, provider, access_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		account, string(p), access, refresh, creds.ExpiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// Account pairs an account name with its provider.
type Account struct {
	Name     string
	Provider model.Provider
}

// ListAccounts returns all linked accounts.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.conn.Query(`SELECT account, provider FROM accounts ORDER BY provider, account`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var p string
		if err := rows.Scan(&a.Name, &p); err != nil {
			return nil, err
		}
		a.Provider = model.Provider(p)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes stored credentials for an account.
func (db *DB) DeleteAccount(account string, p model.Provider) error {
	_, err := db.conn.Exec(`DELETE FROM accounts WHERE account = ? AND provider = ?`, account, string(p))
	return err
}
