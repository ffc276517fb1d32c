// Package credential stores mailbox and forwarder secrets in the OS
// keyring so they can be left out of the config file.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailforward"

// ErrNotFound is returned by Get when no secret is stored under the key.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes secrets in one keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the first available system keyring,
// falling back to an encrypted file under ~/.config/mailforward.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailforward/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailforward-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get returns the secret stored under key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting secret %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Lookup is Get with a missing secret treated as empty, so optional
// secrets fall through to config validation.
func (s *Store) Lookup(key string) (string, error) {
	value, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

// Set stores value under key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting secret %q: %w", key, err)
	}

	return nil
}

// Delete removes the secret stored under key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting secret %q: %w", key, err)
	}
	return nil
}
