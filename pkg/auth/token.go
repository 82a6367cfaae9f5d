package auth

import (
	"nestsync/pkg/errors"
	"nestsync/pkg/logger"
)

// TokenStore is the interface for durable session token storage, keyed by
// guardian login
type TokenStore interface {
	// Token returns the stored token or a not_found error
	Token(login string) (string, error)

	// PutToken replaces any stored token for the login wholesale
	PutToken(login, token string) error

	// ClearToken removes a stored token; unknown logins are a no-op
	ClearToken(login string) error
}

// Options selects which secondary token stores the manager mirrors into
type Options struct {
	// UseKeyring mirrors tokens into the system keychain when available
	UseKeyring bool
	// EncryptedFile, when non-empty, mirrors tokens into an encrypted
	// file at this path (passphrase from NESTSYNC_TOKEN_KEY)
	EncryptedFile string
}

// Manager layers token stores: the first store is authoritative, the rest
// are mirrors. Reads return the first hit in order; writes and clears fan
// out to every store.
type Manager struct {
	stores []TokenStore
	logger logger.Logger
}

// NewManager creates a token manager with primary as the authoritative
// store, adding a keyring mirror and an encrypted-file mirror per opts.
// Unavailable mirrors are skipped with a debug log, never an error.
func NewManager(primary TokenStore, opts Options) *Manager {
	log := logger.GetLogger()
	stores := []TokenStore{primary}

	if opts.UseKeyring {
		keyringStore, err := NewKeyringStore()
		if err != nil {
			log.WithError(err).Debug("system keyring unavailable, skipping")
		} else {
			stores = append(stores, keyringStore)
		}
	}

	if opts.EncryptedFile != "" {
		encryptedStore, err := NewEncryptedFileStore(opts.EncryptedFile)
		if err != nil {
			log.WithError(err).Debug("encrypted token store unavailable, skipping")
		} else {
			stores = append(stores, encryptedStore)
		}
	}

	return &Manager{stores: stores, logger: log}
}

// Token returns the token from the first store that has one
func (m *Manager) Token(login string) (string, error) {
	var lastErr error
	for _, store := range m.stores {
		token, err := store.Token(login)
		if err == nil && token != "" {
			return token, nil
		}
		lastErr = err
	}
	if lastErr != nil && !errors.IsType(lastErr, errors.ErrorTypeNotFound) {
		return "", lastErr
	}
	return "", errors.Newf(errors.ErrorTypeNotFound, "no stored token for %s", login)
}

// PutToken writes the token to every store. Failure of the authoritative
// store is an error; mirror failures are logged and ignored.
func (m *Manager) PutToken(login, token string) error {
	if err := m.stores[0].PutToken(login, token); err != nil {
		return err
	}
	for _, store := range m.stores[1:] {
		if err := store.PutToken(login, token); err != nil {
			m.logger.WithError(err).Warn("failed to mirror token to secondary store")
		}
	}
	return nil
}

// ClearToken removes the token from every store. Failure of the
// authoritative store is an error; mirror failures are logged and ignored.
func (m *Manager) ClearToken(login string) error {
	if err := m.stores[0].ClearToken(login); err != nil {
		return err
	}
	for _, store := range m.stores[1:] {
		if err := store.ClearToken(login); err != nil {
			m.logger.WithError(err).Warn("failed to clear token from secondary store")
		}
	}
	return nil
}
