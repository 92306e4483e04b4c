// Package config owns the persisted settings record and the runtime
// configuration of ryco.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"ryco/config/models"
	"ryco/config/storage"
	"ryco/config/validation"
	"ryco/internal/crypto"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SettingsFileName is the settings file inside the ryco home directory
const SettingsFileName = "settings.json"

// updatableKeys are the top-level settings fields a partial update may set.
// Secrets only change through SaveAPIKey.
var updatableKeys = []string{"activeProvider", "selectedModels", "userDetails", "theme"}

// Manager reads and writes the settings file. Every call goes to disk;
// writes are last-writer-wins.
type Manager struct {
	path    string
	mu      sync.Mutex
	log     logrus.FieldLogger
	backups *storage.BackupManager
}

// NewManager creates a Manager for the settings file under home
func NewManager(home string, log logrus.FieldLogger) (*Manager, error) {
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &Manager{
		path: filepath.Join(home, SettingsFileName),
		log:  log,
	}, nil
}

// DefaultHome resolves the ryco home directory: $RYCO_HOME, then
// $XDG_CONFIG_HOME/ryco, then ~/.config/ryco.
func DefaultHome() (string, error) {
	if home := os.Getenv("RYCO_HOME"); home != "" {
		return home, nil
	}

	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgConfigHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(xdgConfigHome, "ryco"), nil
}

// EnableBackups keeps a rolling copy of the settings file before each write
func (m *Manager) EnableBackups(bm *storage.BackupManager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = bm
}

// Restore replaces the settings with the newest backup and returns the
// backup's path
func (m *Manager) Restore() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bm := m.backups
	if bm == nil {
		bm = storage.NewBackupManager(storage.DefaultBackupRetention)
	}
	restored, err := bm.RestoreLatest(m.path)
	if err != nil {
		return "", err
	}
	m.log.WithField("backup", filepath.Base(restored)).Info("settings restored")
	return restored, nil
}

// Path returns the settings file path
func (m *Manager) Path() string {
	return m.path
}

// Load reads the settings. A missing, empty or corrupt file yields defaults;
// individual malformed fields fall back to their defaults.
func (m *Manager) Load() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.readFile()
	if err != nil {
		return nil, err
	}
	return m.parse(data), nil
}

// Update merges a partial JSON object into the settings
func (m *Manager) Update(partial []byte) error {
	if !gjson.ValidBytes(partial) || !gjson.ParseBytes(partial).IsObject() {
		return fmt.Errorf("settings update must be a JSON object")
	}
	patch := gjson.ParseBytes(partial)
	if patch.Get("apiKeys").Exists() {
		return fmt.Errorf("apiKeys cannot be changed through a settings update")
	}
	if theme := patch.Get("theme"); theme.Exists() && !validation.ValidTheme(theme.String()) {
		return fmt.Errorf("invalid theme %q (expected one of %v)", theme.String(), models.Themes)
	}

	return m.modify(func(current []byte) ([]byte, error) {
		var err error
		for _, key := range updatableKeys {
			value := patch.Get(key)
			if !value.Exists() {
				continue
			}
			current, err = sjson.SetRawBytes(current, key, []byte(value.Raw))
			if err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
		return current, nil
	})
}

// SaveAPIKey stores an encrypted key for provider
func (m *Manager) SaveAPIKey(provider string, secret *crypto.EncryptedSecret) error {
	raw, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to serialize secret: %w", err)
	}
	return m.modify(func(current []byte) ([]byte, error) {
		return sjson.SetRawBytes(current, "apiKeys."+escapeKey(provider), raw)
	})
}

// SetActiveProvider switches the active provider
func (m *Manager) SetActiveProvider(provider string) error {
	return m.modify(func(current []byte) ([]byte, error) {
		return sjson.SetBytes(current, "activeProvider", provider)
	})
}

// SetModel selects model for provider
func (m *Manager) SetModel(provider, model string) error {
	return m.modify(func(current []byte) ([]byte, error) {
		return sjson.SetBytes(current, "selectedModels."+escapeKey(provider), model)
	})
}

func (m *Manager) parse(data []byte) *models.Settings {
	s := models.DefaultSettings()
	if len(data) == 0 {
		return s
	}
	if !gjson.ValidBytes(data) {
		m.log.WithField("path", m.path).Warn("settings file is not valid JSON, using defaults")
		return s
	}
	doc := gjson.ParseBytes(data)

	if v := doc.Get("activeProvider"); v.Type == gjson.String && v.Str != "" {
		s.ActiveProvider = v.Str
	}
	if v := doc.Get("theme"); v.Type == gjson.String && validation.ValidTheme(v.Str) {
		s.Theme = v.Str
	}
	eachField(doc.Get("selectedModels"), func(k, v gjson.Result) bool {
		if v.Type == gjson.String && v.Str != "" {
			s.SelectedModels[k.String()] = v.Str
		}
		return true
	})
	eachField(doc.Get("userDetails"), func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			s.UserDetails[k.String()] = v.Str
		}
		return true
	})
	eachField(doc.Get("apiKeys"), func(k, v gjson.Result) bool {
		var secret crypto.EncryptedSecret
		if err := json.Unmarshal([]byte(v.Raw), &secret); err != nil {
			m.log.WithField("provider", k.String()).Warn("ignoring malformed stored API key")
			return true
		}
		s.APIKeys[k.String()] = secret
		return true
	})
	return s
}

// eachField iterates an object's members; other value types are ignored
func eachField(v gjson.Result, fn func(k, v gjson.Result) bool) {
	if v.IsObject() {
		v.ForEach(fn)
	}
}

// readFile reads the settings under a shared lock
func (m *Manager) readFile() ([]byte, error) {
	file, err := os.OpenFile(m.path, os.O_RDONLY, 0600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer file.Close()

	if err := lockFileShared(file); err != nil {
		return nil, fmt.Errorf("failed to lock settings file: %w", err)
	}
	defer func() {
		if err := unlockFile(file); err != nil {
			m.log.WithError(err).Warn("failed to unlock settings file")
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return data, nil
}

// modify runs a read-modify-write cycle while holding an exclusive lock
func (m *Manager) modify(fn func(current []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open settings file: %w", err)
	}
	defer file.Close()

	if err := lockFileExclusive(file); err != nil {
		return fmt.Errorf("failed to lock settings file: %w", err)
	}
	defer func() {
		if err := unlockFile(file); err != nil {
			m.log.WithError(err).Warn("failed to unlock settings file")
		}
	}()

	current, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	hadContent := len(current) > 0
	if len(current) == 0 || !gjson.ValidBytes(current) || !gjson.ParseBytes(current).IsObject() {
		current = []byte("{}")
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	if m.backups != nil && hadContent {
		if _, err := m.backups.CreateBackup(m.path); err != nil {
			return err
		}
		if err := m.backups.CleanupOldBackups(m.path); err != nil {
			m.log.WithError(err).Warn("failed to prune settings backups")
		}
	}

	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate settings file: %w", err)
	}
	if _, err := file.WriteAt(updated, 0); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync settings file: %w", err)
	}
	return nil
}

// escapeKey escapes characters that gjson/sjson paths treat specially
func escapeKey(key string) string {
	var out []byte
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
