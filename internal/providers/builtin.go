package providers

var defaultGeneration = Generation{
	Temperature: 0.5,
	TopP:        1.0,
	MaxTokens:   1024,
}

// Builtin returns the providers shipped with ryco
func Builtin() []Descriptor {
	gemini := defaultGeneration
	gemini.TopK = 40

	return []Descriptor{
		{
			ID:           "openai",
			DisplayName:  "OpenAI",
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			DefaultModel: "gpt-4o",
			Models:       []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
			WireFormat:   OpenAIChatSSE,
			Generation:   defaultGeneration,
		},
		{
			ID:           "nvidia",
			DisplayName:  "NVIDIA NIM",
			Endpoint:     "https://integrate.api.nvidia.com/v1/chat/completions",
			DefaultModel: "meta/llama-3.1-70b-instruct",
			Models: []string{
				"meta/llama-3.1-70b-instruct",
				"meta/llama-3.1-405b-instruct",
				"nvidia/llama-3.1-nemotron-70b-instruct",
				"openai/gpt-oss-120b",
				"openai/gpt-oss-20b",
				"deepseek-ai/deepseek-r1",
				"deepseek-ai/deepseek-r1-0528",
				"deepseek-ai/deepseek-v3.1",
				"deepseek-ai/deepseek-v3.1-terminus",
				"deepseek-ai/deepseek-v3.2",
				"mistralai/mistral-large-3-675b-instruct-2512",
				"mistralai/mixtral-8x7b-instruct-v0.1",
				"mistralai/mixtral-8x22b-instruct-v0.1",
				"mistralai/mistral-7b-instruct-v0.3",
				"mistralai/mistral-small-24b-instruct-2501",
			},
			WireFormat: OpenAIChatSSE,
			Generation: defaultGeneration,
		},
		{
			ID:           "gemini",
			DisplayName:  "Google Gemini",
			Endpoint:     "https://generativelanguage.googleapis.com/v1beta/models/{model}:streamGenerateContent?alt=sse",
			TestEndpoint: "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
			DefaultModel: "gemini-3-flash-preview",
			Models: []string{
				"gemini-3-pro-preview",
				"gemini-3-flash-preview",
				"gemini-flash-latest",
				"gemini-flash-lite-latest",
			},
			WireFormat: GeminiSSE,
			Generation: gemini,
		},
	}
}
