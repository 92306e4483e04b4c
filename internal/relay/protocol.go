// Package relay carries prompts from unprivileged front ends to the process
// that holds the API keys, and carries streamed chunks back.
package relay

import (
	"encoding/json"

	"ryco/internal/providers"

	"github.com/google/uuid"
)

// Type names a relay message
type Type string

const (
	TypeGetSettings    Type = "RYCO_GET_SETTINGS"
	TypeUpdateSettings Type = "RYCO_UPDATE_SETTINGS"
	TypeSaveAPIKey     Type = "RYCO_SAVE_API_KEY"
	TypeTestConnection Type = "RYCO_TEST_CONNECTION"
	TypeChat           Type = "RYCO_CHAT"
	TypeGetTheme       Type = "RYCO_GET_THEME"

	// TypeStreamChunk is pushed by the server only
	TypeStreamChunk Type = "RYCO_STREAM_CHUNK"
	// TypeSettingsChanged is broadcast when the settings file changes
	TypeSettingsChanged Type = "RYCO_SETTINGS_CHANGED"
	// TypeReply marks the single answer to a request
	TypeReply Type = "RYCO_REPLY"
)

// Message is the one envelope used in both directions. ID pairs a reply
// with its request; CorrelationID pairs stream chunks with a chat.
type Message struct {
	Type          Type   `json:"type"`
	ID            string `json:"id,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	Prompt string `json:"prompt,omitempty"`
	Chunk  string `json:"chunk,omitempty"`
	IsDone bool   `json:"isDone,omitempty"`

	Provider string          `json:"provider,omitempty"`
	APIKey   string          `json:"apiKey,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`

	Success      *bool                  `json:"success,omitempty"`
	Response     string                 `json:"response,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ProviderName string                 `json:"providerName,omitempty"`
	Providers    []providers.Descriptor `json:"providers,omitempty"`
	Theme        string                 `json:"theme,omitempty"`
}

// OK reports whether a reply signals success
func (m Message) OK() bool {
	return m.Success != nil && *m.Success
}

// NewCorrelationID returns a fresh id for one trigger activation
func NewCorrelationID() string {
	return uuid.NewString()
}

// StreamChunk builds a chunk push
func StreamChunk(correlationID, chunk string, done bool) Message {
	return Message{
		Type:          TypeStreamChunk,
		CorrelationID: correlationID,
		Chunk:         chunk,
		IsDone:        done,
	}
}

func success() Message {
	ok := true
	return Message{Type: TypeReply, Success: &ok}
}

func failure(err error) Message {
	ok := false
	return Message{Type: TypeReply, Success: &ok, Error: err.Error()}
}
