package auth

import (
	"sync"

	"nestsync/pkg/errors"
)

// MockTokenStore is an in-memory TokenStore for testing
type MockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string

	// FailPut and FailClear force the corresponding operation to error
	FailPut   bool
	FailClear bool

	// PutCalls and ClearCalls record the logins passed to each operation
	PutCalls   []string
	ClearCalls []string
}

// NewMockTokenStore creates an empty in-memory token store
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{tokens: make(map[string]string)}
}

func (m *MockTokenStore) Token(login string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[login]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no stored token for %s", login)
	}
	return token, nil
}

func (m *MockTokenStore) PutToken(login, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls = append(m.PutCalls, login)
	if m.FailPut {
		return errors.New(errors.ErrorTypeStorage, "put failed")
	}
	m.tokens[login] = token
	return nil
}

func (m *MockTokenStore) ClearToken(login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ClearCalls = append(m.ClearCalls, login)
	if m.FailClear {
		return errors.New(errors.ErrorTypeStorage, "clear failed")
	}
	delete(m.tokens, login)
	return nil
}
