package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ryco/config/models"
	"ryco/config/validation"
	"ryco/internal/chat"
	"ryco/internal/crypto"
	"ryco/internal/providers"

	"github.com/sirupsen/logrus"
)

// ErrUnknownType is the reply error for unrecognized message types
var ErrUnknownType = errors.New("Unknown message type")

// Sink is the connection a request came from. Push is fire-and-forget:
// an error only means the chunk was not delivered.
type Sink interface {
	ID() string
	Push(msg Message) error
}

// Handler answers one request
type Handler interface {
	Handle(ctx context.Context, sink Sink, msg Message) Message
}

// SettingsStore is the settings contract the relay needs
type SettingsStore interface {
	Load() (*models.Settings, error)
	Update(partial []byte) error
	SaveAPIKey(provider string, secret *crypto.EncryptedSecret) error
}

// Encrypter seals API keys before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (*crypto.EncryptedSecret, error)
}

// Chatter runs a chat to completion, reporting deltas as they arrive
type Chatter interface {
	Chat(ctx context.Context, prompt string, onChunk func(text string, final bool)) (string, error)
}

// ConnectionTester validates a key against a provider
type ConnectionTester interface {
	TestConnection(ctx context.Context, provider, apiKey string) (string, error)
}

// Dispatcher routes requests to the settings store, the secret store and
// the chat client
type Dispatcher struct {
	registry *providers.Registry
	settings SettingsStore
	secrets  Encrypter
	chat     Chatter
	tester   ConnectionTester
	log      logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(registry *providers.Registry, settings SettingsStore, secrets Encrypter, chat Chatter, tester ConnectionTester, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		settings: settings,
		secrets:  secrets,
		chat:     chat,
		tester:   tester,
		log:      log,
	}
}

// Handle answers msg. It never fails: errors become {success:false, error}.
func (d *Dispatcher) Handle(ctx context.Context, sink Sink, msg Message) Message {
	log := d.log.WithFields(logrus.Fields{"tab": sink.ID(), "type": msg.Type})

	var (
		reply Message
		err   error
	)
	switch msg.Type {
	case TypeChat:
		return d.handleChat(ctx, sink, msg, log)
	case TypeGetSettings:
		reply, err = d.getSettings()
	case TypeGetTheme:
		reply, err = d.getTheme()
	case TypeUpdateSettings:
		reply, err = d.updateSettings(msg)
	case TypeSaveAPIKey:
		reply, err = d.saveAPIKey(msg)
	case TypeTestConnection:
		reply, err = d.testConnection(ctx, msg)
	default:
		err = ErrUnknownType
	}
	if err != nil {
		log.WithError(err).Debug("request failed")
		return failure(err)
	}
	return reply
}

// handleChat pushes one chunk per delta followed by exactly one done chunk,
// whatever happens to the request
func (d *Dispatcher) handleChat(ctx context.Context, sink Sink, msg Message, log logrus.FieldLogger) Message {
	log = log.WithField("correlation_id", msg.CorrelationID)

	push := func(m Message) {
		if err := sink.Push(m); err != nil {
			log.WithError(err).Debug("dropped stream chunk")
		}
	}

	doneSent := false
	full, err := d.chat.Chat(ctx, msg.Prompt, func(text string, final bool) {
		if final {
			doneSent = true
		}
		push(StreamChunk(msg.CorrelationID, text, final))
	})
	if !doneSent {
		push(StreamChunk(msg.CorrelationID, "", true))
	}

	if err != nil {
		log.WithError(err).Warn("chat failed")
		reply := failure(err)
		reply.Response = full
		return reply
	}

	reply := success()
	reply.Response = full
	return reply
}

func (d *Dispatcher) getSettings() (Message, error) {
	settings, err := d.settings.Load()
	if err != nil {
		return Message{}, err
	}
	raw, err := json.Marshal(settings.View())
	if err != nil {
		return Message{}, fmt.Errorf("failed to serialize settings: %w", err)
	}

	reply := success()
	reply.Settings = raw
	reply.Providers = d.registry.List()
	return reply, nil
}

func (d *Dispatcher) getTheme() (Message, error) {
	settings, err := d.settings.Load()
	if err != nil {
		return Message{}, err
	}
	reply := success()
	reply.Theme = settings.Theme
	return reply, nil
}

func (d *Dispatcher) updateSettings(msg Message) (Message, error) {
	if len(msg.Settings) == 0 {
		return Message{}, fmt.Errorf("settings update is empty")
	}
	if err := d.settings.Update(msg.Settings); err != nil {
		return Message{}, err
	}
	return success(), nil
}

func (d *Dispatcher) saveAPIKey(msg Message) (Message, error) {
	if !d.registry.Has(msg.Provider) {
		return Message{}, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, msg.Provider)
	}
	if err := validation.ValidateAPIKey(msg.APIKey); err != nil {
		return Message{}, err
	}

	secret, err := d.secrets.Encrypt(msg.APIKey)
	if err != nil {
		return Message{}, err
	}
	if err := d.settings.SaveAPIKey(msg.Provider, secret); err != nil {
		return Message{}, err
	}
	return success(), nil
}

func (d *Dispatcher) testConnection(ctx context.Context, msg Message) (Message, error) {
	name, err := d.tester.TestConnection(ctx, msg.Provider, msg.APIKey)
	if err != nil {
		return Message{}, err
	}
	reply := success()
	reply.ProviderName = name
	return reply, nil
}

var _ Chatter = (*chat.Client)(nil)
var _ ConnectionTester = (*chat.Tester)(nil)
