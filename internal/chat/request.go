package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ryco/internal/providers"
	"ryco/internal/stream"

	"github.com/tidwall/sjson"
)

const (
	behaviourInstruction = "You are Ryco by Mohammad Faiz. Be extremely concise and direct. No introductions, no preambles, no filler. Get straight to the answer immediately. Keep responses brief and actionable."
	formatInstruction    = "Format: Plain text only. No markdown, no asterisks, no brackets, no symbols. Write naturally like a human. For emails/business content, be professional but concise."

	testPrompt    = "Hi"
	testMaxTokens = 8
)

// SafetyPolicy names how provider-side content filtering is configured
type SafetyPolicy string

const (
	// SafetyBlockNone sends BLOCK_NONE for every harm category
	SafetyBlockNone SafetyPolicy = "block_none"
	// SafetyProviderDefault leaves the provider's own thresholds in place
	SafetyProviderDefault SafetyPolicy = "provider_default"
)

// ParseSafetyPolicy validates a policy name
func ParseSafetyPolicy(name string) (SafetyPolicy, error) {
	switch p := SafetyPolicy(name); p {
	case SafetyBlockNone, SafetyProviderDefault:
		return p, nil
	default:
		return "", fmt.Errorf("unknown safety policy %q", name)
	}
}

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func applyGeneration(body []byte, g providers.Generation, paths stream.ParamPaths) ([]byte, error) {
	type param struct {
		path  string
		value interface{}
		set   bool
	}
	params := []param{
		{paths.Temperature, g.Temperature, true},
		{paths.TopP, g.TopP, g.TopP > 0},
		{paths.TopK, g.TopK, g.TopK > 0},
		{paths.FrequencyPenalty, g.FrequencyPenalty, true},
		{paths.PresencePenalty, g.PresencePenalty, true},
		{paths.MaxTokens, g.MaxTokens, g.MaxTokens > 0},
	}

	var err error
	for _, p := range params {
		if p.path == "" || !p.set {
			continue
		}
		if body, err = sjson.SetBytes(body, p.path, p.value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", p.path, err)
		}
	}
	return body, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	SafetySettings    []safetySetting `json:"safetySettings,omitempty"`
}

// requestInput is everything a request body is built from
type requestInput struct {
	Model       string
	Prompt      string
	UserContext string
	Stream      bool
	Safety      SafetyPolicy
	Generation  providers.Generation
	// Bare drops the system instructions, for connection tests
	Bare bool
}

func (in requestInput) instructions() []string {
	if in.Bare {
		return nil
	}
	out := []string{behaviourInstruction, formatInstruction}
	if in.UserContext != "" {
		out = append(out, in.UserContext)
	}
	return out
}

// buildBody renders the JSON body for adapter's wire format
func buildBody(adapter stream.Adapter, in requestInput) ([]byte, error) {
	var (
		body []byte
		err  error
	)

	switch format := adapter.Format(); format {
	case providers.OpenAIChatSSE:
		req := openAIRequest{Model: in.Model, Stream: in.Stream}
		for _, text := range in.instructions() {
			req.Messages = append(req.Messages, chatMessage{Role: "system", Content: text})
		}
		req.Messages = append(req.Messages, chatMessage{Role: "user", Content: in.Prompt})
		body, err = json.Marshal(req)

	case providers.GeminiSSE:
		req := geminiRequest{
			Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: in.Prompt}}}},
		}
		if instructions := in.instructions(); len(instructions) > 0 {
			sys := &geminiContent{}
			for _, text := range instructions {
				sys.Parts = append(sys.Parts, geminiPart{Text: text})
			}
			req.SystemInstruction = sys
		}
		if in.Safety == SafetyBlockNone {
			for _, c := range harmCategories {
				req.SafetySettings = append(req.SafetySettings, safetySetting{Category: c, Threshold: "BLOCK_NONE"})
			}
		}
		body, err = json.Marshal(req)
		if err == nil {
			body, err = sjson.SetBytes(body, "generationConfig.candidateCount", 1)
		}

	default:
		return nil, fmt.Errorf("no request builder for wire format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	return applyGeneration(body, in.Generation, adapter.Params())
}

// authHeaders returns the credential headers for desc
func authHeaders(desc providers.Descriptor, apiKey string) map[string]string {
	switch desc.WireFormat {
	case providers.GeminiSSE:
		return map[string]string{"x-goog-api-key": apiKey}
	default:
		return map[string]string{"Authorization": "Bearer " + apiKey}
	}
}

func newHTTPRequest(ctx context.Context, url string, desc providers.Descriptor, apiKey string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range authHeaders(desc, apiKey) {
		req.Header.Set(k, v)
	}
	return req, nil
}
