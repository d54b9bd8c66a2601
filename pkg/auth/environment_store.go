package auth

import (
	"os"
	"strings"
	"time"
)

// TokenEnvVar holds a bearer token supplied through the environment
const TokenEnvVar = "LIKESYNC_BEARER_TOKEN"

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment token under the requested name
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = DefaultAccount
	}

	return &Account{
		Name:         name,
		BearerToken:  token,
		LastModified: time.Now(),
	}, nil
}

// List reports the environment token as the default account
func (e *EnvironmentStore) List() ([]Summary, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return nil, nil
	}
	return []Summary{summarize(account, "environment")}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment token exists
func (e *EnvironmentStore) Exists(name string) bool {
	return strings.TrimSpace(os.Getenv(TokenEnvVar)) != ""
}
