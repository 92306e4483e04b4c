package models

import "ryco/internal/crypto"

const (
	// DefaultProvider is active until the user picks another
	DefaultProvider = "openai"
	// DefaultTheme is the UI theme on first run
	DefaultTheme = "dark"
)

// Themes lists accepted theme values
var Themes = []string{"dark", "light"}

// Settings is the flat record shared by every ryco process
type Settings struct {
	ActiveProvider string                            `json:"activeProvider"`
	SelectedModels map[string]string                 `json:"selectedModels"`
	UserDetails    map[string]string                 `json:"userDetails"`
	APIKeys        map[string]crypto.EncryptedSecret `json:"apiKeys"`
	Theme          string                            `json:"theme"`
}

// DefaultSettings returns the first-run settings
func DefaultSettings() *Settings {
	return &Settings{
		ActiveProvider: DefaultProvider,
		SelectedModels: map[string]string{},
		UserDetails:    map[string]string{},
		APIKeys:        map[string]crypto.EncryptedSecret{},
		Theme:          DefaultTheme,
	}
}

// Secret returns the stored secret for provider, or nil
func (s *Settings) Secret(provider string) *crypto.EncryptedSecret {
	secret, ok := s.APIKeys[provider]
	if !ok {
		return nil
	}
	return &secret
}

// View is what settings look like outside the privileged process: secrets
// are reduced to a per-provider flag.
type View struct {
	ActiveProvider string            `json:"activeProvider"`
	SelectedModels map[string]string `json:"selectedModels"`
	UserDetails    map[string]string `json:"userDetails"`
	HasKey         map[string]bool   `json:"hasKey"`
	Theme          string            `json:"theme"`
}

// View strips secrets
func (s *Settings) View() View {
	v := View{
		ActiveProvider: s.ActiveProvider,
		SelectedModels: make(map[string]string, len(s.SelectedModels)),
		UserDetails:    make(map[string]string, len(s.UserDetails)),
		HasKey:         make(map[string]bool, len(s.APIKeys)),
		Theme:          s.Theme,
	}
	for k, m := range s.SelectedModels {
		v.SelectedModels[k] = m
	}
	for k, d := range s.UserDetails {
		v.UserDetails[k] = d
	}
	for k := range s.APIKeys {
		v.HasKey[k] = true
	}
	return v
}
