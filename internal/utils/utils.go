// Package utils holds small display and address helpers shared by the CLI.
package utils

// MaskAPIKey masks an API key for display. Keys of 8 bytes or fewer are
// hidden entirely.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
