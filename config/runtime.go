package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ryco/internal/providers"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// RuntimeFileName is the optional TOML file inside the ryco home directory
const RuntimeFileName = "ryco.toml"

// Duration is a time.Duration that reads from TOML strings such as "500ms"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// GenerationOverride changes selected generation defaults of one provider
type GenerationOverride struct {
	Temperature      *float64 `toml:"temperature"`
	TopP             *float64 `toml:"top_p"`
	TopK             *int     `toml:"top_k"`
	FrequencyPenalty *float64 `toml:"frequency_penalty"`
	PresencePenalty  *float64 `toml:"presence_penalty"`
	MaxTokens        *int     `toml:"max_tokens"`
}

// Apply returns g with the override's set fields replaced
func (o GenerationOverride) Apply(g providers.Generation) providers.Generation {
	if o.Temperature != nil {
		g.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		g.TopP = *o.TopP
	}
	if o.TopK != nil {
		g.TopK = *o.TopK
	}
	if o.FrequencyPenalty != nil {
		g.FrequencyPenalty = *o.FrequencyPenalty
	}
	if o.PresencePenalty != nil {
		g.PresencePenalty = *o.PresencePenalty
	}
	if o.MaxTokens != nil {
		g.MaxTokens = *o.MaxTokens
	}
	return g
}

// Runtime holds process tunables. Precedence, lowest first: defaults,
// ryco.toml, .env and RYCO_* environment, command-line flags.
type Runtime struct {
	Home            string                        `toml:"home"`
	ListenAddr      string                        `toml:"listen_addr"`
	LogLevel        string                        `toml:"log_level"`
	LogFormat       string                        `toml:"log_format"`
	KeyBackend      string                        `toml:"key_backend"`
	SafetyPolicy    string                        `toml:"safety_policy"`
	MaxPromptChars  int                           `toml:"max_prompt_chars"`
	MaxProfileChars int                           `toml:"max_profile_chars"`
	MaxRetries      int                           `toml:"max_retries"`
	RetryBaseDelay  Duration                      `toml:"retry_base_delay"`
	RetryMaxDelay   Duration                      `toml:"retry_max_delay"`
	ChatTimeout     Duration                      `toml:"chat_timeout"`
	TestTimeout     Duration                      `toml:"test_timeout"`
	Debounce        Duration                      `toml:"debounce"`
	Backups         int                           `toml:"backups"`
	Generation      map[string]GenerationOverride `toml:"generation"`
}

// DefaultRuntime returns built-in defaults
func DefaultRuntime() *Runtime {
	return &Runtime{
		ListenAddr:      "127.0.0.1:7878",
		LogLevel:        "info",
		LogFormat:       "text",
		KeyBackend:      "file",
		SafetyPolicy:    "block_none",
		MaxPromptChars:  8000,
		MaxProfileChars: 1000,
		MaxRetries:      3,
		RetryBaseDelay:  Duration{500 * time.Millisecond},
		RetryMaxDelay:   Duration{8 * time.Second},
		ChatTimeout:     Duration{60 * time.Second},
		TestTimeout:     Duration{15 * time.Second},
		Debounce:        Duration{100 * time.Millisecond},
		Backups:         3,
	}
}

// LoadRuntime builds the runtime configuration for home. A missing ryco.toml
// is fine; a malformed one is an error naming the file.
func LoadRuntime(home string) (*Runtime, error) {
	rt := DefaultRuntime()
	rt.Home = home

	path := filepath.Join(home, RuntimeFileName)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, rt); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := rt.applyEnv(); err != nil {
		return nil, err
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// LoadEnvFile loads a .env file from the working directory or the nearest
// parent that has one. Existing environment variables win. It returns the
// path loaded, or "" when there was none.
func LoadEnvFile() string {
	workDir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := workDir; ; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				return envPath
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			return ""
		}
	}
}

func (rt *Runtime) applyEnv() error {
	strVars := map[string]*string{
		"RYCO_LISTEN_ADDR":   &rt.ListenAddr,
		"RYCO_LOG_LEVEL":     &rt.LogLevel,
		"RYCO_LOG_FORMAT":    &rt.LogFormat,
		"RYCO_KEY_BACKEND":   &rt.KeyBackend,
		"RYCO_SAFETY_POLICY": &rt.SafetyPolicy,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"RYCO_MAX_RETRIES":      &rt.MaxRetries,
		"RYCO_MAX_PROMPT_CHARS": &rt.MaxPromptChars,
	}
	for name, dst := range intVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	durVars := map[string]*Duration{
		"RYCO_CHAT_TIMEOUT": &rt.ChatTimeout,
		"RYCO_TEST_TIMEOUT": &rt.TestTimeout,
	}
	for name, dst := range durVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// Validate checks value ranges
func (rt *Runtime) Validate() error {
	switch strings.ToLower(rt.KeyBackend) {
	case "file", "keyring":
	default:
		return fmt.Errorf("key_backend: expected file or keyring, got %q", rt.KeyBackend)
	}
	switch rt.SafetyPolicy {
	case "block_none", "provider_default":
	default:
		return fmt.Errorf("safety_policy: expected block_none or provider_default, got %q", rt.SafetyPolicy)
	}
	if rt.MaxRetries < 0 {
		return fmt.Errorf("max_retries: must not be negative")
	}
	if rt.MaxPromptChars <= 0 {
		return fmt.Errorf("max_prompt_chars: must be positive")
	}
	if rt.MaxProfileChars <= 0 {
		return fmt.Errorf("max_profile_chars: must be positive")
	}
	for name, d := range map[string]Duration{
		"retry_base_delay": rt.RetryBaseDelay,
		"retry_max_delay":  rt.RetryMaxDelay,
		"chat_timeout":     rt.ChatTimeout,
		"test_timeout":     rt.TestTimeout,
		"debounce":         rt.Debounce,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}
	if rt.RetryMaxDelay.Duration < rt.RetryBaseDelay.Duration {
		return fmt.Errorf("retry_max_delay: must not be below retry_base_delay")
	}
	return nil
}

// Providers returns the built-in providers with generation overrides applied
func (rt *Runtime) Providers() (*providers.Registry, error) {
	descs := providers.Builtin()
	for i, d := range descs {
		if o, ok := rt.Generation[d.ID]; ok {
			descs[i].Generation = o.Apply(d.Generation)
		}
	}
	for id := range rt.Generation {
		found := false
		for _, d := range descs {
			if d.ID == id {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("generation.%s: %w", id, providers.ErrUnknownProvider)
		}
	}
	return providers.NewRegistry(descs...)
}
