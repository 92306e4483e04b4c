package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ryco/config/models"
	"ryco/internal/crypto"
	"ryco/internal/logging"
	"ryco/internal/providers"

	"github.com/stretchr/testify/require"
)

type staticSettings struct {
	settings *models.Settings
}

func (s staticSettings) Load() (*models.Settings, error) {
	return s.settings, nil
}

// plainSecrets treats the secret's Data as the plaintext key
type plainSecrets struct{}

func (plainSecrets) Decrypt(secret *crypto.EncryptedSecret) (string, bool) {
	if secret == nil || len(secret.Data) == 0 {
		return "", false
	}
	return string(secret.Data), true
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testDescriptor(id string, format providers.WireFormat, baseURL string) providers.Descriptor {
	return providers.Descriptor{
		ID:           id,
		DisplayName:  "Test " + id,
		Endpoint:     baseURL + "/stream/{model}",
		TestEndpoint: baseURL + "/test/{model}",
		DefaultModel: "default-model",
		Models:       []string{"default-model", "other-model"},
		WireFormat:   format,
		Generation:   providers.Generation{Temperature: 0.5, TopP: 1, MaxTokens: 1024},
	}
}

func testSettings(provider string, key string) *models.Settings {
	s := models.DefaultSettings()
	s.ActiveProvider = provider
	if key != "" {
		s.APIKeys[provider] = crypto.EncryptedSecret{IV: make([]byte, crypto.NonceSize), Data: []byte(key)}
	}
	return s
}

// newTestClient serves handler and returns a client whose active provider
// points at it
func newTestClient(t *testing.T, format providers.WireFormat, handler http.HandlerFunc, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	reg, err := providers.NewRegistry(testDescriptor("test", format, server.URL))
	require.NoError(t, err)

	rec := &sleepRecorder{}
	base := []Option{
		WithHTTPClient(server.Client()),
		WithSleep(rec.sleep),
		WithLogger(logging.Discard()),
	}
	return NewClient(reg, staticSettings{testSettings("test", "sk-test-key-123")}, plainSecrets{}, append(base, opts...)...), rec
}

func openAIStream(deltas ...string) string {
	out := ""
	for _, d := range deltas {
		out += `data: {"choices":[{"delta":{"content":"` + d + `"}}]}` + "\n\n"
	}
	return out + "data: [DONE]\n\n"
}
