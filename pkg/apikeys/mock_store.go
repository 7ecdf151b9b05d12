package apikeys

import (
	"sync"
)

// MockStore implements KeyStore for testing purposes
type MockStore struct {
	creds map[string]*Credential
	mu    sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock key store
func NewMockStore() *MockStore {
	return &MockStore{
		creds: make(map[string]*Credential),
	}
}

// Store saves the credential to the mock store
func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cred == nil || cred.Provider == "" {
		return ErrInvalidKey
	}

	credCopy := *cred
	m.creds[cred.Provider] = &credCopy

	return nil
}

// Retrieve gets the credential from the mock store
func (m *MockStore) Retrieve(provider string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if provider == "" {
		return nil, ErrInvalidKey
	}

	cred, exists := m.creds[provider]
	if !exists {
		return nil, ErrKeyNotFound
	}

	credCopy := *cred
	return &credCopy, nil
}

// List returns all stored credentials from the mock store
func (m *MockStore) List() ([]*Credential, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var creds []*Credential
	for _, cred := range m.creds {
		credCopy := *cred
		creds = append(creds, &credCopy)
	}

	return creds, nil
}

// Delete removes the credential from the mock store
func (m *MockStore) Delete(provider string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if provider == "" {
		return ErrInvalidKey
	}

	if _, exists := m.creds[provider]; !exists {
		return ErrKeyNotFound
	}

	delete(m.creds, provider)
	return nil
}

// Exists checks if a credential exists in the mock store
func (m *MockStore) Exists(provider string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.creds[provider]
	return exists
}

// Clear removes all credentials from the mock store
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = make(map[string]*Credential)
}

// Count returns the number of credentials in the mock store
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.creds)
}

// NewMockManager creates a Manager with a mock store for testing
func NewMockManager() (*Manager, *MockStore) {
	mockStore := NewMockStore()
	manager := &Manager{
		stores: []KeyStore{mockStore},
	}
	return manager, mockStore
}

// NewMockManagerWithStores creates a Manager with multiple stores for testing
func NewMockManagerWithStores(stores ...KeyStore) *Manager {
	return &Manager{
		stores: stores,
	}
}
