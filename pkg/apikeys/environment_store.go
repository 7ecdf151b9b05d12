package apikeys

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvironmentStore implements KeyStore using environment variables of the
// form WEATHERCOLLECT_<PROVIDER>_API_KEY. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based key store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// envVar returns the environment variable name for a provider
func envVar(provider string) string {
	return fmt.Sprintf("WEATHERCOLLECT_%s_API_KEY", strings.ToUpper(provider))
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the credential from environment variables
func (e *EnvironmentStore) Retrieve(provider string) (*Credential, error) {
	if provider == "" {
		return nil, ErrInvalidKey
	}

	key := os.Getenv(envVar(provider))
	if key == "" {
		return nil, ErrKeyNotFound
	}

	return &Credential{
		Provider:     provider,
		Key:          key,
		LastModified: time.Now(),
	}, nil
}

// List scans the environment for provider API keys
func (e *EnvironmentStore) List() ([]*Credential, error) {
	var creds []*Credential
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || value == "" {
			continue
		}
		provider, found := strings.CutPrefix(name, "WEATHERCOLLECT_")
		if !found {
			continue
		}
		provider, found = strings.CutSuffix(provider, "_API_KEY")
		if !found || provider == "" {
			continue
		}
		creds = append(creds, &Credential{
			Provider:     strings.ToLower(provider),
			Key:          value,
			LastModified: time.Now(),
		})
	}
	return creds, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(provider string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment key exists
func (e *EnvironmentStore) Exists(provider string) bool {
	return os.Getenv(envVar(provider)) != ""
}
