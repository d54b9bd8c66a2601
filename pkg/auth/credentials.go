package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// DefaultAccount is the account name used when none is given
const DefaultAccount = "default"

// Account holds an X API bearer token under a local name
type Account struct {
	Name         string    `json:"name"`
	BearerToken  string    `json:"bearer_token"`
	LastModified time.Time `json:"last_modified"`
}

// Summary describes a stored account without its token
type Summary struct {
	Name         string
	Source       string
	MaskedToken  string
	LastModified time.Time
}

func summarize(account *Account, source string) Summary {
	return Summary{
		Name:         account.Name,
		Source:       source,
		MaskedToken:  MaskToken(account.BearerToken),
		LastModified: account.LastModified,
	}
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific account name
	Retrieve(name string) (*Account, error)

	// List describes the stored accounts; tokens are never returned
	List() ([]Summary, error)

	// Delete removes credentials for a specific account name
	Delete(name string) error

	// Exists checks if credentials exist for an account name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// Try keyring first (system keychain)
	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	// Always add encrypted file store as fallback
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment is read-only and consulted last
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first available store
func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	account.Name = strings.TrimSpace(account.Name)
	account.BearerToken = strings.TrimSpace(account.BearerToken)
	if account.Name == "" {
		account.Name = DefaultAccount
	}
	if account.BearerToken == "" {
		return errors.New("bearer token is required")
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
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Account, error) {
	if name == "" {
		name = DefaultAccount
	}
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for account: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault returns the environment token if set, then the default
// account, then the first stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	if account, err := m.Retrieve(DefaultAccount); err == nil {
		return account, nil
	}

	summaries, err := m.List()
	if err == nil && len(summaries) > 0 {
		return m.Retrieve(summaries[0].Name)
	}

	return nil, ErrCredentialsNotFound
}

// Token resolves a bearer token for the named account, or the default
// account when name is empty
func (m *Manager) Token(name string) (string, error) {
	var (
		account *Account
		err     error
	)
	if name == "" {
		account, err = m.RetrieveDefault()
	} else {
		account, err = m.Retrieve(name)
	}
	if err != nil {
		return "", err
	}
	return account.BearerToken, nil
}

// List returns the accounts known to any store, sorted by name. When a name
// appears in several stores the most recently modified entry is reported.
func (m *Manager) List() ([]Summary, error) {
	byName := make(map[string]Summary)

	for _, store := range m.stores {
		summaries, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range summaries {
			if existing, ok := byName[s.Name]; !ok || s.LastModified.After(existing.LastModified) {
				byName[s.Name] = s
			}
		}
	}

	result := make([]Summary, 0, len(byName))
	for _, s := range byName {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for account: %s", ErrCredentialsNotFound, name)
	}

	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	summaries, err := m.List()
	if err != nil {
		return err
	}

	for _, s := range summaries {
		_ = m.Delete(s.Name)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "likesync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "likesync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "likesync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "likesync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
