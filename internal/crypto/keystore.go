package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// KeyStore persists the master key.
// Load returns nil, nil when no key has been created yet.
type KeyStore interface {
	Load() ([]byte, error)
	Create() ([]byte, error)
}

// FileKeyStore keeps the master key in a 0600 file
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a FileKeyStore at path
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// KeyPath returns the default key file location under home
func KeyPath(home string) string {
	return filepath.Join(home, ".keys", "master.key")
}

// Path returns the key file path
func (s *FileKeyStore) Path() string {
	return s.path
}

// Load reads the key file
func (s *FileKeyStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(data) != KeySize {
		return nil, fmt.Errorf("key file %s has invalid size %d (expected %d)", s.path, len(data), KeySize)
	}
	return data, nil
}

// Create writes a new key to a temp file and hard-links it into place.
// os.Link fails if the key already exists, so when two processes race only
// one key is ever visible and the loser returns the winner's key.
func (s *FileKeyStore) Create() ([]byte, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".master.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temporary key file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary key file: %w", err)
	}

	if err := os.Link(tmpPath, s.path); err != nil {
		if os.IsExist(err) {
			winner, loadErr := s.Load()
			if loadErr != nil {
				return nil, loadErr
			}
			if winner == nil {
				return nil, fmt.Errorf("key file %s vanished after concurrent creation", s.path)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("failed to link key file: %w", err)
	}
	return key, nil
}

// KeyringKeyStore keeps the master key in the OS keychain
type KeyringKeyStore struct {
	service string
	user    string
}

// NewKeyringKeyStore creates a keychain-backed store
func NewKeyringKeyStore(service, user string) *KeyringKeyStore {
	return &KeyringKeyStore{service: service, user: user}
}

// Load fetches the key from the keychain
func (s *KeyringKeyStore) Load() ([]byte, error) {
	encoded, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keychain: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keychain entry is not valid base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("keychain key has invalid size %d (expected %d)", len(key), KeySize)
	}
	return key, nil
}

// Create stores a new key unless one appeared in the meantime
func (s *KeyringKeyStore) Create() ([]byte, error) {
	if existing, err := s.Load(); err != nil || existing != nil {
		return existing, err
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := keyring.Set(s.service, s.user, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("failed to write keychain: %w", err)
	}
	return key, nil
}
