package chat

import (
	"context"
	"time"

	"ryco/config/validation"
	"ryco/internal/providers"
	"ryco/internal/stream"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultTestTimeout bounds a connection test
const DefaultTestTimeout = 15 * time.Second

// Tester checks that an API key works by sending a tiny non-streaming request
type Tester struct {
	registry *providers.Registry
	http     *resty.Client
	safety   SafetyPolicy
	log      logrus.FieldLogger
}

// TesterOption is a functional option for configuring a Tester
type TesterOption func(*Tester)

// WithTestTimeout sets the request timeout
func WithTestTimeout(d time.Duration) TesterOption {
	return func(t *Tester) {
		t.http.SetTimeout(d)
	}
}

// WithTestLogger sets the logger
func WithTestLogger(log logrus.FieldLogger) TesterOption {
	return func(t *Tester) {
		t.log = log
	}
}

// WithTestSafetyPolicy sets the content-safety policy
func WithTestSafetyPolicy(p SafetyPolicy) TesterOption {
	return func(t *Tester) {
		t.safety = p
	}
}

// NewTester creates a Tester
func NewTester(registry *providers.Registry, opts ...TesterOption) *Tester {
	t := &Tester{
		registry: registry,
		http:     resty.New().SetTimeout(DefaultTestTimeout),
		safety:   SafetyBlockNone,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TestConnection validates apiKey against provider and returns the
// provider's display name on success.
func (t *Tester) TestConnection(ctx context.Context, provider, apiKey string) (string, error) {
	if err := validation.ValidateAPIKey(apiKey); err != nil {
		return "", err
	}

	desc, err := t.registry.Get(provider)
	if err != nil {
		return "", err
	}

	adapter, err := stream.AdapterFor(desc.WireFormat)
	if err != nil {
		return "", err
	}

	gen := desc.Generation
	gen.MaxTokens = testMaxTokens
	body, err := buildBody(adapter, requestInput{
		Model:      desc.DefaultModel,
		Prompt:     testPrompt,
		Safety:     t.safety,
		Generation: gen,
		Bare:       true,
	})
	if err != nil {
		return "", err
	}

	log := t.log.WithField("provider", desc.ID)
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(authHeaders(desc, apiKey)).
		SetBody(body).
		Post(desc.TestURL(desc.DefaultModel))
	if err != nil {
		log.WithError(err).Warn("connection test failed")
		return "", networkError(err)
	}
	if resp.IsError() {
		perr := newProviderError(resp.StatusCode(), resp.Body())
		log.WithField("status", perr.Status).Warn("connection test rejected")
		return "", perr
	}

	log.Info("connection test succeeded")
	return desc.DisplayName, nil
}
