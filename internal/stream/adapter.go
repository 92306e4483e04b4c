package stream

import (
	"fmt"
	"strings"

	"ryco/internal/providers"

	"github.com/tidwall/gjson"
)

// Kind tags what a record carried
type Kind int

const (
	// Unrecognized records have no text at a known path
	Unrecognized Kind = iota
	// Delta is user-visible answer text
	Delta
	// Thought is internal reasoning text that is never surfaced
	Thought
)

func (k Kind) String() string {
	switch k {
	case Delta:
		return "delta"
	case Thought:
		return "thought"
	default:
		return "unrecognized"
	}
}

// Event is the tagged result of extracting one record
type Event struct {
	Kind Kind
	Text string
}

// ParamPaths are the JSON paths a wire format takes generation
// parameters at. An empty path means the format has no such parameter.
type ParamPaths struct {
	Temperature      string
	TopP             string
	TopK             string
	FrequencyPenalty string
	PresencePenalty  string
	MaxTokens        string
}

// Adapter describes one wire format: where its requests carry generation
// parameters and how text is extracted from its parsed JSON records
type Adapter interface {
	Format() providers.WireFormat
	Params() ParamPaths
	Extract(record gjson.Result) Event
}

// AdapterFor returns the adapter for a wire format
func AdapterFor(format providers.WireFormat) (Adapter, error) {
	switch format {
	case providers.OpenAIChatSSE:
		return OpenAIChat{}, nil
	case providers.GeminiSSE:
		return Gemini{}, nil
	default:
		return nil, fmt.Errorf("no stream adapter for wire format %q", format)
	}
}

// OpenAIChat reads chat-completion chunks
type OpenAIChat struct{}

// Format implements Adapter
func (OpenAIChat) Format() providers.WireFormat { return providers.OpenAIChatSSE }

// Params implements Adapter
func (OpenAIChat) Params() ParamPaths {
	return ParamPaths{
		Temperature:      "temperature",
		TopP:             "top_p",
		FrequencyPenalty: "frequency_penalty",
		PresencePenalty:  "presence_penalty",
		MaxTokens:        "max_tokens",
	}
}

// Extract implements Adapter. Some OpenAI-compatible hosts stream reasoning
// models' chain of thought in reasoning_content; that is tagged as Thought.
func (OpenAIChat) Extract(record gjson.Result) Event {
	delta := record.Get("choices.0.delta")
	if content := delta.Get("content"); content.Type == gjson.String && content.Str != "" {
		return Event{Kind: Delta, Text: content.Str}
	}
	if reasoning := delta.Get("reasoning_content"); reasoning.Type == gjson.String && reasoning.Str != "" {
		return Event{Kind: Thought, Text: reasoning.Str}
	}
	return Event{Kind: Unrecognized}
}

// Gemini reads streamGenerateContent records
type Gemini struct{}

// Format implements Adapter
func (Gemini) Format() providers.WireFormat { return providers.GeminiSSE }

// Params implements Adapter. Gemini has no penalty parameters.
func (Gemini) Params() ParamPaths {
	return ParamPaths{
		Temperature: "generationConfig.temperature",
		TopP:        "generationConfig.topP",
		TopK:        "generationConfig.topK",
		MaxTokens:   "generationConfig.maxOutputTokens",
	}
}

// Extract implements Adapter. Parts flagged thought:true are skipped; the
// remaining text parts of the first candidate are concatenated.
func (Gemini) Extract(record gjson.Result) Event {
	parts := record.Get("candidates.0.content.parts")
	if !parts.IsArray() {
		return Event{Kind: Unrecognized}
	}

	var visible, thought strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		text := part.Get("text")
		if text.Type != gjson.String {
			return true
		}
		if part.Get("thought").Bool() {
			thought.WriteString(text.Str)
		} else {
			visible.WriteString(text.Str)
		}
		return true
	})

	switch {
	case visible.Len() > 0:
		return Event{Kind: Delta, Text: visible.String()}
	case thought.Len() > 0:
		return Event{Kind: Thought, Text: thought.String()}
	default:
		return Event{Kind: Unrecognized}
	}
}
