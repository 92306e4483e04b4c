// Package chat turns a prompt and the current settings into a streamed
// answer from the active provider.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ryco/config/models"
	"ryco/internal/crypto"
	"ryco/internal/providers"
	"ryco/internal/stream"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxPromptChars is the prompt ceiling in runes
	DefaultMaxPromptChars = 8000
	// DefaultMaxProfileChars bounds the rendered user profile
	DefaultMaxProfileChars = 1000
	// DefaultTimeout bounds a whole chat request including the stream
	DefaultTimeout = 60 * time.Second
)

// SettingsLoader reads the current settings
type SettingsLoader interface {
	Load() (*models.Settings, error)
}

// SecretOpener decrypts stored API keys
type SecretOpener interface {
	Decrypt(secret *crypto.EncryptedSecret) (string, bool)
}

// Client sends chat requests. Settings are loaded on every call.
type Client struct {
	registry *providers.Registry
	settings SettingsLoader
	secrets  SecretOpener

	http            *http.Client
	retry           RetryPolicy
	timeout         time.Duration
	safety          SafetyPolicy
	maxPromptChars  int
	maxProfileChars int
	sleep           SleepFunc
	now             func() time.Time
	log             logrus.FieldLogger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithRetryPolicy sets the retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithTimeout bounds each chat request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithSafetyPolicy sets the content-safety policy
func WithSafetyPolicy(p SafetyPolicy) Option {
	return func(c *Client) {
		c.safety = p
	}
}

// WithLimits sets the prompt and profile ceilings
func WithLimits(maxPromptChars, maxProfileChars int) Option {
	return func(c *Client) {
		c.maxPromptChars = maxPromptChars
		c.maxProfileChars = maxProfileChars
	}
}

// WithSleep replaces the backoff wait
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a Client
func NewClient(registry *providers.Registry, settings SettingsLoader, secrets SecretOpener, opts ...Option) *Client {
	c := &Client{
		registry:        registry,
		settings:        settings,
		secrets:         secrets,
		http:            &http.Client{},
		retry:           DefaultRetryPolicy,
		timeout:         DefaultTimeout,
		safety:          SafetyBlockNone,
		maxPromptChars:  DefaultMaxPromptChars,
		maxProfileChars: DefaultMaxProfileChars,
		sleep:           sleepContext,
		now:             time.Now,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendChat starts a streamed request for prompt. Configuration problems are
// reported before any network I/O. The returned Stream must be drained or
// closed.
func (c *Client) SendChat(ctx context.Context, prompt string) (*Stream, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if n := utf8.RuneCountInString(prompt); n > c.maxPromptChars {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrPromptTooLong, n, c.maxPromptChars)
	}

	settings, err := c.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	desc, err := c.registry.Get(settings.ActiveProvider)
	if err != nil {
		return nil, err
	}
	model := desc.ResolveModel(settings.SelectedModels[desc.ID])

	apiKey, ok := c.secrets.Decrypt(settings.Secret(desc.ID))
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoAPIKeyConfigured, desc.DisplayName)
	}

	adapter, err := stream.AdapterFor(desc.WireFormat)
	if err != nil {
		return nil, err
	}

	body, err := buildBody(adapter, requestInput{
		Model:       model,
		Prompt:      prompt,
		UserContext: BuildUserContext(settings.UserDetails, c.maxProfileChars),
		Stream:      true,
		Safety:      c.safety,
		Generation:  desc.Generation,
	})
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{"provider": desc.ID, "model": model})
	log.Debug("sending chat request")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	url := desc.URL(model)
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return newHTTPRequest(ctx, url, desc, apiKey, body)
	}, log)
	if err != nil {
		cancel()
		return nil, err
	}

	return newStream(resp.Body, adapter, cancel, log), nil
}

// Chat runs SendChat to completion, calling onChunk(delta, false) for each
// delta and onChunk("", true) once when the stream ends. It returns all
// text received; on a mid-stream failure the text so far is returned along
// with a *StreamError.
func (c *Client) Chat(ctx context.Context, prompt string, onChunk func(text string, final bool)) (string, error) {
	s, err := c.SendChat(ctx, prompt)
	if err != nil {
		return "", err
	}
	defer s.Close()

	for s.Next() {
		if onChunk != nil {
			onChunk(s.Text(), false)
		}
	}
	if onChunk != nil {
		onChunk("", true)
	}
	return s.Full(), s.Err()
}
