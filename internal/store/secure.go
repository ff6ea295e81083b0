package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const masterKeyFile = "master.key"

// SecureFileStore is a Secure implementation: values are sealed with
// ChaCha20-Poly1305 under a key derived (HKDF-SHA256) from a random master
// key created on first use. The master key file stands in for platform
// keystore material and is only readable by the owning user.
type SecureFileStore struct {
	inner *FileStore
	aead  cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewSecureFileStore returns a SecureFileStore at path. The master key lives
// next to it in the same directory.
func NewSecureFileStore(path string) (*SecureFileStore, error) {
	inner, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	master, err := loadOrCreateMasterKey(filepath.Join(filepath.Dir(path), masterKeyFile))
	if err != nil {
		return nil, err
	}
	key := make([]byte, chacha20poly1305.KeySize)
	h := hkdf.New(sha256.New, master, nil, []byte("billpoint-secure-store"))
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("store: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &SecureFileStore{inner: inner, aead: aead}, nil
}

// Get returns the decrypted value for key, or ErrNotFound.
// A value that fails authentication returns a decryption error.
func (s *SecureFileStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("store: sealed value for %s too short", key)
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("store: decrypt %s: %w", key, err)
	}
	return plain, nil
}

// Set encrypts and stores value under key.
func (s *SecureFileStore) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, sealed)
}

// Delete removes key. Missing keys are not an error.
func (s *SecureFileStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func loadOrCreateMasterKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("store: master key at %s has wrong length %d", path, len(raw))
		}
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: read master key: %w", err)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("store: write master key: %w", err)
	}
	return key, nil
}
