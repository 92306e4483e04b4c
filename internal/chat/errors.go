package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyPrompt is returned for a blank prompt
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrPromptTooLong is returned when the prompt exceeds the configured ceiling
	ErrPromptTooLong = errors.New("prompt too long")
	// ErrNoAPIKeyConfigured is returned when the active provider has no usable key
	ErrNoAPIKeyConfigured = errors.New("no API key configured")
)

// Category classifies a provider failure
type Category string

const (
	CategoryAuthFailure   Category = "authentication_failure"
	CategoryRateLimit     Category = "rate_limit"
	CategoryModelNotFound Category = "model_not_found"
	CategoryEndpoint      Category = "endpoint_not_found"
	CategoryBadRequest    Category = "bad_request"
	CategoryServerError   Category = "server_error"
	CategoryNetworkError  Category = "network_error"
	CategoryUnknown       Category = "unknown_error"
)

var userMessages = map[Category]string{
	CategoryAuthFailure:   "Invalid API key. Please check your credentials.",
	CategoryRateLimit:     "Rate limit exceeded. Please wait a moment and try again.",
	CategoryModelNotFound: "Model not found. Please verify the selected model.",
	CategoryEndpoint:      "API endpoint not found.",
	CategoryServerError:   "The provider had a server error. Please try again later.",
	CategoryNetworkError:  "Network error: unable to reach the provider.",
}

// ProviderError is a failed call to a provider. Status is 0 for
// network-level failures.
type ProviderError struct {
	Status   int
	Message  string
	Category Category
	Err      error
}

// Error returns the user-facing text. Credential and rate-limit failures
// get a fixed message; everything else keeps the provider's own message.
func (e *ProviderError) Error() string {
	switch e.Category {
	case CategoryAuthFailure, CategoryRateLimit:
		return userMessages[e.Category]
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API Error: %d", e.Status)
}

// UserMessage returns the category's generic explanation
func (e *ProviderError) UserMessage() string {
	if msg, ok := userMessages[e.Category]; ok {
		return msg
	}
	return e.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed
func (e *ProviderError) Retryable() bool {
	return e.Status == 0 || retryableStatus(e.Status)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// categorize maps a status code and body to a Category
func categorize(status int, body []byte) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuthFailure
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status == http.StatusNotFound:
		if strings.Contains(strings.ToLower(string(body)), "model") {
			return CategoryModelNotFound
		}
		return CategoryEndpoint
	case status >= http.StatusInternalServerError:
		return CategoryServerError
	case status >= http.StatusBadRequest:
		return CategoryBadRequest
	default:
		return CategoryUnknown
	}
}

// newProviderError builds a ProviderError from a non-2xx response
func newProviderError(status int, body []byte) *ProviderError {
	message := ""
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "0.error.message", "message", "detail"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				message = v.Str
				break
			}
		}
	}
	if message == "" {
		message = fmt.Sprintf("API Error: %d", status)
	}
	return &ProviderError{
		Status:   status,
		Message:  message,
		Category: categorize(status, body),
	}
}

func networkError(err error) *ProviderError {
	return &ProviderError{
		Message:  err.Error(),
		Category: CategoryNetworkError,
		Err:      err,
	}
}

// StreamError is a failure after some text was already streamed. Partial
// holds everything received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
