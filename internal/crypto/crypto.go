// Package crypto encrypts provider API keys at rest with AES-256-GCM under a
// single master key that is persisted once and shared by every process.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

const (
	// KeySize is the master key length (AES-256)
	KeySize = 32
	// NonceSize is the GCM nonce length
	NonceSize = 12
)

// EncryptedSecret is one provider key sealed under the master key
type EncryptedSecret struct {
	IV   []byte `json:"iv"`
	Data []byte `json:"data"`
}

// UnmarshalJSON accepts both base64 strings and arrays of byte values,
// so secrets written by older clients still load.
func (s *EncryptedSecret) UnmarshalJSON(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("invalid secret json")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return fmt.Errorf("secret must be an object")
	}

	iv, err := decodeBytes(obj.Get("iv"))
	if err != nil {
		return fmt.Errorf("secret iv: %w", err)
	}
	data, err := decodeBytes(obj.Get("data"))
	if err != nil {
		return fmt.Errorf("secret data: %w", err)
	}

	s.IV = iv
	s.Data = data
	return nil
}

// MarshalJSON writes the base64 form
func (s EncryptedSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IV   string `json:"iv"`
		Data string `json:"data"`
	}{
		IV:   base64.StdEncoding.EncodeToString(s.IV),
		Data: base64.StdEncoding.EncodeToString(s.Data),
	})
}

func decodeBytes(v gjson.Result) ([]byte, error) {
	switch {
	case !v.Exists():
		return nil, nil
	case v.Type == gjson.String:
		return base64.StdEncoding.DecodeString(v.Str)
	case v.IsArray():
		var out []byte
		var bad error
		v.ForEach(func(_, b gjson.Result) bool {
			n := b.Int()
			if b.Type != gjson.Number || n < 0 || n > 255 {
				bad = fmt.Errorf("byte value out of range: %s", b.Raw)
				return false
			}
			out = append(out, byte(n))
			return true
		})
		return out, bad
	default:
		return nil, fmt.Errorf("unexpected %s", v.Type)
	}
}

// KeyManager encrypts and decrypts secrets. The master key is read from the
// store on every operation; nothing is cached between calls.
type KeyManager struct {
	store KeyStore
	mu    sync.Mutex
}

// NewKeyManager creates a KeyManager backed by store
func NewKeyManager(store KeyStore) *KeyManager {
	return &KeyManager{store: store}
}

// GetOrCreateKey returns the persisted master key, creating it on first use.
// Concurrent first calls in one process are serialised here; the store
// guarantees a single winner across processes.
func (km *KeyManager) GetOrCreateKey() ([]byte, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	key, err := km.store.Load()
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}
	return km.store.Create()
}

// Encrypt seals plaintext with a fresh random nonce
func (km *KeyManager) Encrypt(plaintext string) (*EncryptedSecret, error) {
	key, err := km.GetOrCreateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedSecret{
		IV:   nonce,
		Data: gcm.Seal(nil, nonce, []byte(plaintext), nil),
	}, nil
}

// Decrypt opens a secret. Any failure (nil secret, missing key, bad nonce,
// tampered data) reports absent instead of an error.
func (km *KeyManager) Decrypt(secret *EncryptedSecret) (string, bool) {
	if secret == nil || len(secret.IV) != NonceSize || len(secret.Data) == 0 {
		return "", false
	}

	key, err := km.store.Load()
	if err != nil || key == nil {
		return "", false
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", false
	}

	plaintext, err := gcm.Open(nil, secret.IV, secret.Data, nil)
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key has invalid size %d (expected %d)", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
