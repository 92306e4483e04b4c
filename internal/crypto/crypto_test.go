package crypto

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zalando/go-keyring"
)

func newTestManager(t *testing.T) *KeyManager {
	t.Helper()
	return NewKeyManager(NewFileKeyStore(KeyPath(t.TempDir())))
}

func TestKeyManager(t *testing.T) {
	km := newTestManager(t)

	t.Run("Encrypt and Decrypt", func(t *testing.T) {
		testCases := []struct {
			name      string
			plaintext string
		}{
			{"Empty string", ""},
			{"Short API key", "test-123"},
			{"Normal API key", "test-fake-key-abcdefghijklmnopqrstuvwxyz"},
			{"Special characters", "test-!@#$%^&*()_+-=[]{}|;:',.<>?/~`"},
			{"Unicode characters", "test-🔑-こんにちは-世界"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				secret, err := km.Encrypt(tc.plaintext)
				if err != nil {
					t.Fatalf("Encrypt failed: %v", err)
				}
				if len(secret.IV) != NonceSize {
					t.Errorf("IV length = %d, want %d", len(secret.IV), NonceSize)
				}

				got, ok := km.Decrypt(secret)
				if !ok {
					t.Fatalf("Decrypt reported absent")
				}
				if got != tc.plaintext {
					t.Errorf("Decrypted value %q doesn't match original %q", got, tc.plaintext)
				}
			})
		}
	})

	t.Run("Malformed secrets decrypt to absent", func(t *testing.T) {
		good, err := km.Encrypt("test-fake-key-123456")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		tampered := &EncryptedSecret{IV: good.IV, Data: append([]byte(nil), good.Data...)}
		tampered.Data[0] ^= 0xff

		testCases := []struct {
			name   string
			secret *EncryptedSecret
		}{
			{"nil", nil},
			{"empty", &EncryptedSecret{}},
			{"short iv", &EncryptedSecret{IV: []byte{1, 2, 3}, Data: good.Data}},
			{"no data", &EncryptedSecret{IV: good.IV}},
			{"tampered", tampered},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				if got, ok := km.Decrypt(tc.secret); ok || got != "" {
					t.Errorf("Decrypt() = %q, %v; want absent", got, ok)
				}
			})
		}
	})

	t.Run("Wrong key decrypts to absent", func(t *testing.T) {
		secret, err := km.Encrypt("test-fake-key-123456")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		other := newTestManager(t)
		if _, err := other.GetOrCreateKey(); err != nil {
			t.Fatalf("GetOrCreateKey failed: %v", err)
		}
		if _, ok := other.Decrypt(secret); ok {
			t.Errorf("secret opened under a different key")
		}
	})

	t.Run("Missing key decrypts to absent", func(t *testing.T) {
		fresh := newTestManager(t)
		secret := &EncryptedSecret{IV: make([]byte, NonceSize), Data: []byte("0123456789abcdef0")}
		if _, ok := fresh.Decrypt(secret); ok {
			t.Errorf("Decrypt succeeded without a key")
		}
	})
}

func TestNonceNeverReused(t *testing.T) {
	km := newTestManager(t)
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		secret, err := km.Encrypt("same plaintext")
		if err != nil {
			t.Fatalf("Encrypt failed at %d: %v", i, err)
		}
		iv := hex.EncodeToString(secret.IV)
		if _, dup := seen[iv]; dup {
			t.Fatalf("nonce reused after %d encryptions", i)
		}
		seen[iv] = struct{}{}
	}
}

func TestGetOrCreateKeyConcurrent(t *testing.T) {
	path := KeyPath(t.TempDir())

	// separate managers model separate processes sharing one key file
	const workers = 16
	keys := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = NewKeyManager(NewFileKeyStore(path)).GetOrCreateKey()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if hex.EncodeToString(keys[i]) != hex.EncodeToString(keys[0]) {
			t.Fatalf("worker %d saw a different key", i)
		}
	}

	persisted, err := NewFileKeyStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if hex.EncodeToString(persisted) != hex.EncodeToString(keys[0]) {
		t.Errorf("persisted key differs from returned key")
	}
}

func TestFileKeyStoreRejectsBadSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.key")
	store := NewFileKeyStore(path)
	if key, err := store.Load(); err != nil || key != nil {
		t.Fatalf("Load() on missing file = %v, %v; want nil, nil", key, err)
	}
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Errorf("expected size error")
	}
}

func TestKeyringKeyStore(t *testing.T) {
	keyring.MockInit()
	km := NewKeyManager(NewKeyringKeyStore("ryco-test", "master"))

	first, err := km.GetOrCreateKey()
	if err != nil {
		t.Fatalf("GetOrCreateKey failed: %v", err)
	}
	second, err := km.GetOrCreateKey()
	if err != nil {
		t.Fatalf("GetOrCreateKey failed: %v", err)
	}
	if hex.EncodeToString(first) != hex.EncodeToString(second) {
		t.Errorf("keychain key changed between calls")
	}

	secret, err := km.Encrypt("test-fake-key-123456")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if got, ok := km.Decrypt(secret); !ok || got != "test-fake-key-123456" {
		t.Errorf("Decrypt() = %q, %v", got, ok)
	}
}

func TestEncryptedSecretJSON(t *testing.T) {
	t.Run("base64 round trip", func(t *testing.T) {
		in := EncryptedSecret{IV: []byte{1, 2, 3}, Data: []byte{250, 251}}
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatal(err)
		}
		var out EncryptedSecret
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if hex.EncodeToString(out.IV) != "010203" || hex.EncodeToString(out.Data) != "fafb" {
			t.Errorf("got %+v", out)
		}
	})

	t.Run("byte arrays", func(t *testing.T) {
		var out EncryptedSecret
		if err := json.Unmarshal([]byte(`{"iv":[1,2,3],"data":[255,0]}`), &out); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if hex.EncodeToString(out.IV) != "010203" || hex.EncodeToString(out.Data) != "ff00" {
			t.Errorf("got %+v", out)
		}
	})

	t.Run("out of range byte", func(t *testing.T) {
		var out EncryptedSecret
		if err := json.Unmarshal([]byte(`{"iv":[1,300],"data":[]}`), &out); err == nil {
			t.Errorf("expected error")
		}
	})
}

// Property: decrypt(encrypt(x)) == x for any string
func TestProperty_RoundTrip(t *testing.T) {
	km := newTestManager(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decrypt inverts encrypt", prop.ForAll(
		func(plaintext string) bool {
			secret, err := km.Encrypt(plaintext)
			if err != nil {
				return false
			}
			got, ok := km.Decrypt(secret)
			return ok && got == plaintext
		},
		gen.AnyString(),
	))

	properties.Property("random bytes never decrypt", prop.ForAll(
		func(iv, data []byte) bool {
			_, ok := km.Decrypt(&EncryptedSecret{IV: iv, Data: data})
			return !ok
		},
		gen.SliceOfN(NonceSize, gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
