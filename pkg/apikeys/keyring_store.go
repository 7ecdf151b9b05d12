package apikeys

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "weathercollect"
	keyringPrefix  = "provider_"
)

// KeyringStore implements KeyStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based key store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	err := keyring.Set(keyringService, testKey, "test")
	if err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves the credential to the system keychain
func (k *KeyringStore) Store(cred *Credential) error {
	if cred == nil || cred.Provider == "" {
		return ErrInvalidKey
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	key := keyringPrefix + cred.Provider
	if err := keyring.Set(keyringService, key, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return nil
}

// Retrieve gets the credential from the system keychain
func (k *KeyringStore) Retrieve(provider string) (*Credential, error) {
	if provider == "" {
		return nil, ErrInvalidKey
	}

	key := keyringPrefix + provider
	data, err := keyring.Get(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}

// List returns all stored credentials from the keychain
func (k *KeyringStore) List() ([]*Credential, error) {
	// go-keyring cannot enumerate keys, so the keychain contributes
	// nothing to listings. The encrypted file store covers that case.
	return []*Credential{}, nil
}

// Delete removes the credential from the system keychain
func (k *KeyringStore) Delete(provider string) error {
	if provider == "" {
		return ErrInvalidKey
	}

	key := keyringPrefix + provider
	err := keyring.Delete(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return nil
}

// Exists checks if a credential exists in the keychain
func (k *KeyringStore) Exists(provider string) bool {
	if provider == "" {
		return false
	}

	key := keyringPrefix + provider
	_, err := keyring.Get(keyringService, key)
	return err == nil
}
