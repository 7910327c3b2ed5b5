package auth

import (
	"os"
	"time"
)

const (
	EnvAccessToken = "ZSXQSYNC_ACCESS_TOKEN"
	EnvUserAgent   = "ZSXQSYNC_USER_AGENT"

	envAccountName = "env"
)

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

// Retrieve gets credentials from environment variables. The account is
// named "env"; an empty name also selects it.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv(EnvAccessToken)
	if token == "" || (name != "" && name != envAccountName) {
		return nil, ErrCredentialsNotFound
	}
	name = envAccountName

	return &Account{
		Name:         name,
		AccessToken:  token,
		UserAgent:    os.Getenv(EnvUserAgent),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the token variable is set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
