package validation

import (
	"fmt"
	"strings"
)

// ValidateProviderID checks the shape of a provider id
func ValidateProviderID(id string) error {
	if id == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if strings.ContainsAny(id, "<>\"'&/\\. ") {
		return fmt.Errorf("provider contains invalid characters")
	}
	if len(id) > 50 {
		return fmt.Errorf("provider is too long (max 50 characters)")
	}
	return nil
}

// ValidateModelName checks if a model name is valid
func ValidateModelName(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if strings.ContainsAny(model, "<>\"'&\\") {
		return fmt.Errorf("model name contains invalid characters")
	}
	return nil
}

// ValidateModelInList checks that model is one of models
func ValidateModelInList(model string, models []string) error {
	if err := ValidateModelName(model); err != nil {
		return err
	}
	normalized := strings.TrimSpace(model)
	for _, m := range models {
		if strings.TrimSpace(m) == normalized {
			return nil
		}
	}
	return fmt.Errorf("model '%s' is not in supported models list: %v", model, models)
}
