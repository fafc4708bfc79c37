package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"catlux/pkg/config"
)

// Account is a CatLux login
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager over the system keychain, an encrypted file
// in dir and the environment, in that order. An empty dir means ConfigDir().
func NewManager(dir string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials in the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return errors.New("username is required")
	}
	if account.Password == "" {
		return errors.New("password is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the environment account if set, else the most
// recently stored one
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err != nil {
		return nil, err
	}
	var latest *Account
	for _, account := range accounts {
		if latest == nil || account.LastModified.After(latest.LastModified) {
			latest = account
		}
	}
	if latest == nil {
		return nil, ErrCredentialsNotFound
	}
	return latest, nil
}

// List returns the stored accounts of all stores, newest version per user
func (m *Manager) List() ([]*Account, error) {
	byUser := make(map[string]*Account)
	var order []string

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			existing, ok := byUser[account.Username]
			if !ok {
				order = append(order, account.Username)
			}
			if !ok || account.LastModified.After(existing.LastModified) {
				byUser[account.Username] = account
			}
		}
	}

	result := make([]*Account, 0, len(order))
	for _, username := range order {
		result = append(result, byUser[username])
	}
	return result, nil
}

// Delete removes credentials from every store holding them
func (m *Manager) Delete(username string) error {
	deleted := false
	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// Resolve picks the account to log in with. Explicit configuration wins,
// then the stored account for the configured username, then the default.
func (m *Manager) Resolve(cfg *config.CatluxConfig) (*Account, error) {
	if cfg.Username != "" && cfg.Password != "" {
		return &Account{Username: cfg.Username, Password: cfg.Password}, nil
	}
	if cfg.Username != "" {
		return m.Retrieve(cfg.Username)
	}
	return m.RetrieveDefault()
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", config.AppName)
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), config.AppName)
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			dir = filepath.Join(xdgConfig, config.AppName)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", config.AppName)
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy safe for display
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	return &Account{
		Username:     account.Username,
		Password:     maskString(account.Password),
		LastModified: account.LastModified,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:2] + "..." + s[len(s)-2:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
