package utils

import (
	"strings"
	"testing"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "Empty key",
			key:      "",
			expected: "****",
		},
		{
			name:     "Short key (8 chars)",
			key:      "12345678",
			expected: "****",
		},
		{
			name:     "Normal key (12 chars)",
			key:      "123456789012",
			expected: "1234****9012",
		},
		{
			name:     "Gemini style key",
			key:      "AIzaSyD-abcdefghijklmnopqrstuvwxyz",
			expected: "AIza****wxyz",
		},
		{
			name:     "NVIDIA style key",
			key:      "nvapi-abcdefghijklmnopqrstuvwxyz123456",
			expected: "nvap****3456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskAPIKey(tt.key)
			if got != tt.expected {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestMaskAPIKeyHidesMiddle(t *testing.T) {
	key := "sk-proj-supersecretkey123"
	masked := MaskAPIKey(key)
	if strings.Contains(masked, "supersecret") {
		t.Errorf("masked key contains the secret part: %q", masked)
	}
	if len(masked) != 12 {
		t.Errorf("masked length = %d, want 12", len(masked))
	}
}

func TestValidateRelayURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"ws://127.0.0.1:7878/relay", false},
		{"wss://relay.example.com/relay", false},
		{"http://127.0.0.1:7878/relay", true},
		{"ws://", true},
		{"", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateRelayURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelayURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestRelayURL(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"127.0.0.1:7878", "ws://127.0.0.1:7878/relay"},
		{":7878", "ws://127.0.0.1:7878/relay"},
		{"0.0.0.0:9000", "ws://127.0.0.1:9000/relay"},
		{"localhost:7878", "ws://localhost:7878/relay"},
		{"ws://10.0.0.5:7878/relay", "ws://10.0.0.5:7878/relay"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := RelayURL(tt.addr, "/relay"); got != tt.expected {
				t.Errorf("RelayURL(%q) = %q, want %q", tt.addr, got, tt.expected)
			}
		})
	}
}
