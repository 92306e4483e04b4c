package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"ryco/config/models"
)

// MinAPIKeyLength is the shortest key accepted for storage
const MinAPIKeyLength = 10

// ErrInvalidAPIKeyFormat is returned for keys that cannot be real
var ErrInvalidAPIKeyFormat = errors.New("invalid API key format")

// ValidateAPIKey checks a key before it is stored or tested
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if len(key) < MinAPIKeyLength {
		return fmt.Errorf("%w: key must be at least %d characters", ErrInvalidAPIKeyFormat, MinAPIKeyLength)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: key contains whitespace", ErrInvalidAPIKeyFormat)
	}
	return nil
}

// ValidTheme reports whether theme is a known value
func ValidTheme(theme string) bool {
	for _, t := range models.Themes {
		if t == theme {
			return true
		}
	}
	return false
}
