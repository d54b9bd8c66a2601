package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/zalando/go-keyring"
)

const (
	keyringService  = "likesync"
	keyringPrefix   = "x_"
	keyringIndexKey = "accounts"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+account.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return k.updateIndex(func(names []string) []string {
		if slices.Contains(names, account.Name) {
			return names
		}
		return append(names, account.Name)
	})
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List describes the accounts named in the index entry. go-keyring cannot
// enumerate a service, so the store keeps its own list of names.
func (k *KeyringStore) List() ([]Summary, error) {
	names, err := k.readIndex()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		account, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, summarize(account, "keyring"))
	}
	return summaries, nil
}

func (k *KeyringStore) readIndex() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) updateIndex(fn func([]string) []string) error {
	names, err := k.readIndex()
	if err != nil {
		return err
	}
	names = fn(names)
	if len(names) == 0 {
		err := keyring.Delete(keyringService, keyringIndexKey)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring index: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndexKey, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	err := keyring.Delete(keyringService, keyringPrefix+name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return k.updateIndex(func(names []string) []string {
		return slices.DeleteFunc(names, func(n string) bool { return n == name })
	})
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}

	_, err := keyring.Get(keyringService, keyringPrefix+name)
	return err == nil
}
