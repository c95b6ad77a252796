package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

const secureContext = "flixor-secure-storage"

// ErrDecryptFailed indicates a stored value could not be decrypted; callers
// treat the record as invalid and delete it.
var ErrDecryptFailed = errors.New("decryption failed")

// SecureStore wraps a Store, encrypting values with AES-256-GCM. The
// encryption key is derived from a master key via HKDF-SHA256 so the same
// master key can serve other contexts later without key reuse.
type SecureStore struct {
	store Store
	aead  cipher.AEAD
}

// NewSecureStore builds a SecureStore from a master key of at least 16 bytes.
func NewSecureStore(store Store, masterKey []byte) (*SecureStore, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(secureContext)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	return &SecureStore{store: store, aead: aead}, nil
}

// OpenSecure loads (or generates and persists) the master key file under
// dataDir and returns a SecureStore over the given Store. With an empty
// dataDir a random ephemeral key is used, so secrets live only as long as
// the process, matching the memory-only Store mode.
func OpenSecure(store Store, dataDir string) (*SecureStore, error) {
	key, err := loadOrCreateMasterKey(dataDir)
	if err != nil {
		return nil, err
	}
	return NewSecureStore(store, key)
}

func loadOrCreateMasterKey(dataDir string) ([]byte, error) {
	if dataDir == "" {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		return key, nil
	}

	keyPath := filepath.Join(dataDir, "key")
	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode master key: %w", err)
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("persist master key: %w", err)
	}

	return key, nil
}

// Get decrypts the stored value for key.
func (s *SecureStore) Get(key string) ([]byte, error) {
	data, err := s.store.Get(key)
	if err != nil {
		return nil, err
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	return plaintext, nil
}

// Set encrypts value and stores it, nonce prepended to the ciphertext.
func (s *SecureStore) Set(key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, value, nil)
	return s.store.Set(key, ciphertext)
}

// Delete removes the value for key.
func (s *SecureStore) Delete(key string) error {
	return s.store.Delete(key)
}
