package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ryco/config"
	"ryco/config/validation"
	"ryco/internal/chat"
	"ryco/internal/crypto"
	"ryco/internal/logging"
	"ryco/internal/providers"
	"ryco/internal/relay"
	"ryco/internal/surface"
	"ryco/internal/trigger"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the root command with a fresh home and returns stdout
func runCommand(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RYCO_KEY_BACKEND", "file")

	homeDir, logLevel, relayURL = "", "", ""
	askDirect, askCopy, listenAddr, pingJSON = false, false, "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--home", home, "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandDefinitions(t *testing.T) {
	tests := []struct {
		cmd *cobra.Command
		use string
	}{
		{serveCmd, "serve"},
		{askCmd, "ask <prompt>"},
		{watchCmd, "watch <dir>"},
		{tuiCmd, "tui"},
		{keySetCmd, "set <provider> <key>"},
		{settingsGetCmd, "get"},
		{settingsSetCmd, "set <json>"},
		{modelCmd, "model <provider> [model]"},
		{useCmd, "use <provider>"},
		{pingCmd, "ping <provider> [key]"},
		{providersCmd, "providers"},
		{statusCmd, "status"},
		{restoreCmd, "restore"},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			if tt.cmd.Use != tt.use {
				t.Errorf("Use = %q, want %q", tt.cmd.Use, tt.use)
			}
			if tt.cmd.Short == "" {
				t.Error("Short should not be empty")
			}
			if tt.cmd.RunE == nil {
				t.Error("RunE should not be nil")
			}
		})
	}
}

func TestKeySetAndProviders(t *testing.T) {
	home := t.TempDir()

	out, err := runCommand(t, home, "key", "set", "openai", "sk-test-1234567890")
	require.NoError(t, err)
	assert.Contains(t, out, "sk-t****7890")
	assert.NotContains(t, out, "1234567890")

	out, err = runCommand(t, home, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "* openai: OpenAI (Model: gpt-4o, key set)")
	assert.Contains(t, out, "  gemini: Google Gemini")
	assert.Contains(t, out, "no key")

	out, err = runCommand(t, home, "settings", "get")
	require.NoError(t, err)
	assert.NotContains(t, out, "apiKeys")
	assert.NotContains(t, out, "sk-test")
	assert.Contains(t, out, `"openai": true`)
}

func TestKeySetRejectsBadInput(t *testing.T) {
	home := t.TempDir()

	_, err := runCommand(t, home, "key", "set", "anthropic", "sk-test-1234567890")
	assert.True(t, errors.Is(err, providers.ErrUnknownProvider), "got %v", err)

	_, err = runCommand(t, home, "key", "set", "openai", "short")
	assert.True(t, errors.Is(err, validation.ErrInvalidAPIKeyFormat), "got %v", err)
}

func TestUseAndModel(t *testing.T) {
	home := t.TempDir()
	gemini, err := providers.Default().Get("gemini")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(gemini.Models), 2)
	pick := gemini.Models[1]

	out, err := runCommand(t, home, "use", "gemini")
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to Google Gemini")

	_, err = runCommand(t, home, "model", "gemini", pick)
	require.NoError(t, err)

	out, err = runCommand(t, home, "model", "gemini")
	require.NoError(t, err)
	assert.Contains(t, out, "* "+pick+"\n")

	_, err = runCommand(t, home, "model", "gemini", "no-such-model")
	assert.Error(t, err)

	out, err = runCommand(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Relay: not running")
	assert.Contains(t, out, "Provider: Google Gemini")
	assert.Contains(t, out, "Model: "+pick)
	assert.Contains(t, out, "API key: not set")
}

func TestSettingsSetAndRestore(t *testing.T) {
	home := t.TempDir()

	_, err := runCommand(t, home, "restore")
	assert.Error(t, err, "nothing to restore yet")

	_, err = runCommand(t, home, "settings", "set", `{"theme":"light"}`)
	require.NoError(t, err)
	_, err = runCommand(t, home, "settings", "set", `{"theme":"dark","userDetails":{"name":"Ada"}}`)
	require.NoError(t, err)

	out, err := runCommand(t, home, "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, `"theme": "dark"`)
	assert.Contains(t, out, `"name": "Ada"`)

	out, err = runCommand(t, home, "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "Settings restored")

	out, err = runCommand(t, home, "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, `"theme": "light"`)

	_, err = runCommand(t, home, "settings", "set", `{"theme":"purple"}`)
	assert.Error(t, err)
	_, err = runCommand(t, home, "settings", "set", `not json`)
	assert.Error(t, err)
}

func TestMissingKeyErrors(t *testing.T) {
	home := t.TempDir()

	_, err := runCommand(t, home, "ping", "openai")
	assert.True(t, errors.Is(err, chat.ErrNoAPIKeyConfigured), "got %v", err)

	_, err = runCommand(t, home, "ask", "--direct", "hello there")
	assert.True(t, errors.Is(err, chat.ErrNoAPIKeyConfigured), "got %v", err)
}

// scriptedChat streams fixed deltas
type scriptedChat struct {
	deltas []string
}

func (s scriptedChat) Chat(ctx context.Context, prompt string, onChunk func(text string, final bool)) (string, error) {
	var full strings.Builder
	for _, d := range s.deltas {
		full.WriteString(d)
		onChunk(d, false)
	}
	onChunk("", true)
	return full.String(), nil
}

type okTester struct{}

func (okTester) TestConnection(ctx context.Context, provider, apiKey string) (string, error) {
	return provider, nil
}

func startRelay(t *testing.T, chatter relay.Chatter) string {
	t.Helper()
	log := logging.Discard()
	home := t.TempDir()

	settings, err := config.NewManager(home, log)
	require.NoError(t, err)
	keys := crypto.NewKeyManager(crypto.NewFileKeyStore(crypto.KeyPath(home)))
	d := relay.NewDispatcher(providers.Default(), settings, keys, chatter, okTester{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	srv := relay.NewServer(ctx, d, log)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + relay.Path
}

func TestAskThroughRelay(t *testing.T) {
	url := startRelay(t, scriptedChat{deltas: []string{"Hello ", "from ", "the relay"}})

	out, err := runCommand(t, t.TempDir(), "--relay", url, "ask", "say", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the relay\n", out)
}

func TestAskWithoutRelay(t *testing.T) {
	_, err := runCommand(t, t.TempDir(), "--relay", "127.0.0.1:1", "ask", "hello there")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ryco serve")
}

// replyRequester answers every chat with a fixed response
type replyRequester struct {
	response string
}

func (r replyRequester) Request(ctx context.Context, msg relay.Message) (relay.Message, error) {
	ok := true
	return relay.Message{Type: relay.TypeReply, Success: &ok, Response: r.response}, nil
}

func TestAnswerTriggersInsertsResponse(t *testing.T) {
	log := logging.Discard()
	detector := trigger.NewDetector(10*time.Millisecond, log)
	defer detector.Close()

	field := trigger.NewTextField("notes", "Dear team,\n@Ryco write a greeting//\nThanks")
	field.Set("Dear team,\n@Ryco write a greeting//\nThanks", len("Dear team,\n@Ryco write a greeting//"))
	detector.Notify(field)

	s := surface.New(surface.WithDismissHook(detector.Reset), surface.WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- answerTriggers(ctx, detector, s, replyRequester{response: "Hello all!"}, nil, log)
	}()

	require.Eventually(t, func() bool {
		text, _ := field.Text()
		return text == "Dear team,\nHello all!\nThanks"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return detector.State("notes") == trigger.Idle
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("answerTriggers did not stop")
	}
}

func TestPingJSONReportsCategory(t *testing.T) {
	home := t.TempDir()

	// a key that fails local validation never reaches the network
	out, err := runCommand(t, home, "ping", "--json", "openai", "short")
	require.Error(t, err)
	assert.Contains(t, out, `"success": false`)
	assert.Contains(t, out, `"provider": "openai"`)
	assert.Contains(t, out, `"error":`)
}
