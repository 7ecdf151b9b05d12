// Package apikeys stores and retrieves weather provider API keys. Keys
// live in the system keychain when one is available, with an encrypted
// file and environment variables as fallbacks.
package apikeys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Credential holds one provider's API key
type Credential struct {
	Provider     string    `json:"provider"`
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
}

// KeyStore is the interface for storing and retrieving provider API keys
type KeyStore interface {
	// Store saves the credential for a provider
	Store(cred *Credential) error

	// Retrieve gets the credential for a specific provider
	Retrieve(provider string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential for a specific provider
	Delete(provider string) error

	// Exists checks if a credential exists for a provider
	Exists(provider string) bool
}

// Manager handles key storage with fallback mechanisms
type Manager struct {
	stores []KeyStore
}

// NewManager creates a new key manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []KeyStore

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

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "apikeys.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Add environment store as last resort
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the credential using the first available store
func (m *Manager) Store(cred *Credential) error {
	if cred.Provider == "" {
		return errors.New("provider name is required")
	}
	if cred.Key == "" {
		return errors.New("API key is required")
	}

	cred.LastModified = time.Now()

	// Try each store in order
	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(cred); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store API key: %w", lastErr)
	}
	return errors.New("no available key stores")
}

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(provider string) (*Credential, error) {
	for _, store := range m.stores {
		if cred, err := store.Retrieve(provider); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("API key not found for provider: %s", provider)
}

// List returns all stored credentials from all stores
func (m *Manager) List() ([]*Credential, error) {
	credMap := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			// Use the most recently modified version
			if existing, ok := credMap[cred.Provider]; !ok || cred.LastModified.After(existing.LastModified) {
				credMap[cred.Provider] = cred
			}
		}
	}

	var result []*Credential
	for _, cred := range credMap {
		result = append(result, cred)
	}

	return result, nil
}

// Delete removes the credential from all stores
func (m *Manager) Delete(provider string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(provider); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete API key: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("API key not found for provider: %s", provider)
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
		configDir = filepath.Join(home, "Library", "Application Support", "weathercollect")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "weathercollect")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "weathercollect")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "weathercollect")
		}
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// MaskKey masks all but the first 4 and last 4 characters of a key
func MaskKey(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrKeyNotFound      = errors.New("API key not found")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrStoreUnavailable = errors.New("key store unavailable")
)
