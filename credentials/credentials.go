// Package credentials stores LLM provider API keys in the system keyring
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
package credentials

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name used in the system keyring.
const keyringService = "crm-intake"

// ErrNotFound indicates no key is stored for the provider.
var ErrNotFound = errors.New("api key not found")

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// Store persists API keys per provider name ("openai", "anthropic").
type Store interface {
	// Get returns the stored key, or ErrNotFound.
	Get(provider string) (string, error)

	// Set stores or replaces the key.
	Set(provider, key string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(provider string) error
}

// KeyringStore keeps API keys in the operating system keyring.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Get(provider string) (string, error) {
	key, err := keyring.Get(keyringService, account(provider))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w for provider %q", ErrNotFound, provider)
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

func (s *KeyringStore) Set(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("api key must not be empty")
	}
	if err := keyring.Set(keyringService, account(provider), key); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

func (s *KeyringStore) Delete(provider string) error {
	err := keyring.Delete(keyringService, account(provider))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

func account(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "default"
	}
	return "api-key-" + provider
}

// MemoryStore is an in-memory Store for tests and for platforms without a
// keyring.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) Get(provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[account(provider)]
	if !ok {
		return "", fmt.Errorf("%w for provider %q", ErrNotFound, provider)
	}
	return key, nil
}

func (s *MemoryStore) Set(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("api key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[account(provider)] = key
	return nil
}

func (s *MemoryStore) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, account(provider))
	return nil
}
