package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ryco/internal/logging"
	"ryco/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestChatRetriesRateLimitThenSucceeds(t *testing.T) {
	var attempts int32
	client, rec := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, openAIStream("Hello", " world"))
	})

	var chunks []string
	finals := 0
	full, err := client.Chat(context.Background(), "say hi", func(text string, final bool) {
		if final {
			finals++
			return
		}
		chunks = append(chunks, text)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", full)
	assert.Equal(t, []string{"Hello", " world"}, chunks)
	assert.Equal(t, 1, finals)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, []time.Duration{DefaultRetryPolicy.Backoff(0), DefaultRetryPolicy.Backoff(1)}, rec.recorded())
}

func TestChatGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	client, rec := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}, WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}))

	_, err := client.SendChat(context.Background(), "hello")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.Status)
	assert.Equal(t, CategoryServerError, perr.Category)
	assert.Equal(t, "overloaded", perr.Error())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Len(t, rec.recorded(), 2)
}

func TestChatRetryAfterOverridesBackoff(t *testing.T) {
	var attempts int32
	client, rec := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, openAIStream("ok"))
	})

	full, err := client.Chat(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", full)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.recorded())
}

func TestChatRetryAfterBeyondLimitFailsFast(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		timeout    time.Duration
	}{
		{"longer than max delay", "30", 0},
		{"past the request deadline", "5", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			client, rec := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.Header().Set("Retry-After", tt.retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
			})

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			_, err := client.Chat(ctx, "hello", nil)
			var perr *ProviderError
			require.True(t, errors.As(err, &perr), "err = %v", err)
			assert.Equal(t, CategoryRateLimit, perr.Category)
			assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
			assert.Empty(t, rec.recorded())
		})
	}
}

func TestChatDoesNotRetryAuthFailure(t *testing.T) {
	var attempts int32
	client, rec := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	})

	_, err := client.SendChat(context.Background(), "hello")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CategoryAuthFailure, perr.Category)
	assert.Equal(t, "Invalid API key. Please check your credentials.", err.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Empty(t, rec.recorded())
}

func TestChatPreflightErrors(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
	}

	client, _ := newTestClient(t, providers.OpenAIChatSSE, handler, WithLimits(10, 100))

	_, err := client.SendChat(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = client.SendChat(context.Background(), strings.Repeat("é", 11))
	assert.ErrorIs(t, err, ErrPromptTooLong)

	s, err := client.SendChat(context.Background(), strings.Repeat("é", 10))
	require.NoError(t, err)
	s.Close()

	reg, err := providers.NewRegistry(testDescriptor("test", providers.OpenAIChatSSE, "http://127.0.0.1:1"))
	require.NoError(t, err)
	noKey := NewClient(reg, staticSettings{testSettings("test", "")}, plainSecrets{}, WithLogger(logging.Discard()))
	_, err = noKey.SendChat(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoAPIKeyConfigured)
	assert.Contains(t, err.Error(), "Test test")

	unknown := NewClient(reg, staticSettings{testSettings("missing", "sk-test-key-123")}, plainSecrets{}, WithLogger(logging.Discard()))
	_, err = unknown.SendChat(context.Background(), "hello")
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)

	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestChatOpenAIRequestShape(t *testing.T) {
	var body []byte
	var auth, accept, path string
	client, _ := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		path = r.URL.Path
		io.WriteString(w, openAIStream("x"))
	})

	_, err := client.Chat(context.Background(), "what is go", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test-key-123", auth)
	assert.Equal(t, "text/event-stream", accept)
	assert.Equal(t, "/stream/default-model", path)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "default-model", req.Get("model").String())
	assert.True(t, req.Get("stream").Bool())
	assert.Equal(t, 0.5, req.Get("temperature").Float())
	assert.Equal(t, int64(1024), req.Get("max_tokens").Int())
	assert.Equal(t, 0.0, req.Get("frequency_penalty").Float())

	msgs := req.Get("messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, behaviourInstruction, msgs[0].Get("content").String())
	assert.Equal(t, formatInstruction, msgs[1].Get("content").String())
	assert.Equal(t, "user", msgs[2].Get("role").String())
	assert.Equal(t, "what is go", msgs[2].Get("content").String())
}

func TestChatGeminiRequestShape(t *testing.T) {
	tests := []struct {
		name       string
		policy     SafetyPolicy
		wantSafety int
	}{
		{"block none", SafetyBlockNone, 4},
		{"provider default", SafetyProviderDefault, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			var key string
			client, _ := newTestClient(t, providers.GeminiSSE, func(w http.ResponseWriter, r *http.Request) {
				body, _ = io.ReadAll(r.Body)
				key = r.Header.Get("x-goog-api-key")
				io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`+"\n\n")
			}, WithSafetyPolicy(tt.policy))

			full, err := client.Chat(context.Background(), "hello", nil)
			require.NoError(t, err)
			assert.Equal(t, "hi", full)
			assert.Equal(t, "sk-test-key-123", key)

			req := gjson.ParseBytes(body)
			assert.Equal(t, "hello", req.Get("contents.0.parts.0.text").String())
			assert.Equal(t, "user", req.Get("contents.0.role").String())
			assert.Len(t, req.Get("systemInstruction.parts").Array(), 2)
			assert.Equal(t, int64(1), req.Get("generationConfig.candidateCount").Int())
			assert.Equal(t, int64(1024), req.Get("generationConfig.maxOutputTokens").Int())
			assert.False(t, req.Get("generationConfig.topK").Exists())

			safety := req.Get("safetySettings").Array()
			assert.Len(t, safety, tt.wantSafety)
			for _, s := range safety {
				assert.Equal(t, "BLOCK_NONE", s.Get("threshold").String())
			}
		})
	}
}

func TestChatUsesSelectedModelAndProfile(t *testing.T) {
	var body []byte
	var path string
	client, _ := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		path = r.URL.Path
		io.WriteString(w, openAIStream("x"))
	})
	settings := client.settings.(staticSettings).settings
	settings.SelectedModels["test"] = "other-model"
	settings.UserDetails["name"] = "Ada"

	_, err := client.Chat(context.Background(), "hello", nil)
	require.NoError(t, err)

	assert.Equal(t, "/stream/other-model", path)
	msgs := gjson.GetBytes(body, "messages").Array()
	require.Len(t, msgs, 4)
	assert.Equal(t, "User Profile: Name: Ada.", msgs[2].Get("content").String())
}

func TestChatKeepsPartialOutputOnStreamFailure(t *testing.T) {
	client, _ := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
	})

	finals := 0
	full, err := client.Chat(context.Background(), "hello", func(text string, final bool) {
		if final {
			finals++
		}
	})
	require.Error(t, err)

	var serr *StreamError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "partial", serr.Partial)
	assert.Equal(t, "partial", full)
	assert.Equal(t, 1, finals)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t, providers.OpenAIChatSSE, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, openAIStream("a", "b"))
	})

	s, err := client.SendChat(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, s.Next())
	assert.Equal(t, "a", s.Text())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
	assert.Equal(t, "a", s.Full())
}
