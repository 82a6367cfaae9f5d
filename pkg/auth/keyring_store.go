package auth

import (
	"fmt"

	"github.com/zalando/go-keyring"

	"nestsync/pkg/errors"
)

const (
	keyringService = "nestsync"
	keyringPrefix  = "feed_"
)

// KeyringStore mirrors session tokens into the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed token store, probing the
// keychain for availability first
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Token retrieves a token from the keychain
func (k *KeyringStore) Token(login string) (string, error) {
	token, err := keyring.Get(keyringService, keyringPrefix+login)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", errors.Newf(errors.ErrorTypeNotFound, "no keychain token for %s", login)
		}
		return "", fmt.Errorf("failed to read from keyring: %w", err)
	}
	return token, nil
}

// PutToken stores a token in the keychain
func (k *KeyringStore) PutToken(login, token string) error {
	if err := keyring.Set(keyringService, keyringPrefix+login, token); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// ClearToken removes a token from the keychain
func (k *KeyringStore) ClearToken(login string) error {
	err := keyring.Delete(keyringService, keyringPrefix+login)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
