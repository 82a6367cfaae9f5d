package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"nestsync/pkg/errors"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv names the environment variable holding the
	// encrypted-file passphrase
	PassphraseEnv = "NESTSYNC_TOKEN_KEY"
)

// EncryptedFileStore mirrors session tokens into an encrypted file using
// PBKDF2 key derivation and AES-GCM
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore creates an encrypted file-based token store. The
// passphrase comes from the NESTSYNC_TOKEN_KEY environment variable; an
// unset variable makes the store unavailable.
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	passphrase := os.Getenv(PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s is not set", PassphraseEnv)
	}

	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return &EncryptedFileStore{filepath: filePath, passphrase: passphrase}, nil
}

// Token retrieves a token from the encrypted file
func (e *EncryptedFileStore) Token(login string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrorTypeNotFound, "no encrypted token for %s", login)
		}
		return "", err
	}

	token, ok := tokens[login]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no encrypted token for %s", login)
	}
	return token, nil
}

// PutToken stores a token in the encrypted file
func (e *EncryptedFileStore) PutToken(login, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if tokens == nil {
		tokens = make(map[string]string)
	}
	tokens[login] = token
	return e.save(tokens)
}

// ClearToken removes a token from the encrypted file
func (e *EncryptedFileStore) ClearToken(login string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if _, ok := tokens[login]; !ok {
		return nil
	}
	delete(tokens, login)

	if len(tokens) == 0 {
		return os.Remove(e.filepath)
	}
	return e.save(tokens)
}

// load reads and decrypts the token file
func (e *EncryptedFileStore) load() (map[string]string, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, err
	}

	var fileData struct {
		Salt      string `json:"salt"`
		Encrypted string `json:"encrypted"`
	}
	if err := json.Unmarshal(content, &fileData); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(fileData.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(fileData.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	decrypted, err := decrypt(encrypted, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token file: %w", err)
	}

	var tokens map[string]string
	if err := json.Unmarshal(decrypted, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse tokens: %w", err)
	}
	return tokens, nil
}

// save encrypts and writes the token file
func (e *EncryptedFileStore) save(tokens map[string]string) error {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	fileData := struct {
		Salt      string `json:"salt"`
		Encrypted string `json:"encrypted"`
	}{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
	}
	content, err := json.Marshal(fileData)
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	return os.WriteFile(e.filepath, content, 0600)
}

// encrypt seals plaintext with AES-GCM; the nonce is prepended
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens AES-GCM ciphertext produced by encrypt
func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, stderrors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
