// Package providers holds the immutable table of LLM providers ryco can talk to.
package providers

import (
	"errors"
	"fmt"
	"strings"
)

// WireFormat names the shape of a provider's streamed response records
type WireFormat string

const (
	// OpenAIChatSSE is the chat-completions delta format (choices[0].delta.content)
	OpenAIChatSSE WireFormat = "OPENAI_CHAT_SSE"
	// GeminiSSE is the candidates/parts format with optional thought parts
	GeminiSSE WireFormat = "GEMINI_SSE"
)

// ErrUnknownProvider is returned for ids outside the registry
var ErrUnknownProvider = errors.New("unknown provider")

// Generation holds per-provider generation defaults. Zero TopK or MaxTokens
// means the parameter is left out of the request.
type Generation struct {
	Temperature      float64 `toml:"temperature"`
	TopP             float64 `toml:"top_p"`
	TopK             int     `toml:"top_k"`
	FrequencyPenalty float64 `toml:"frequency_penalty"`
	PresencePenalty  float64 `toml:"presence_penalty"`
	MaxTokens        int     `toml:"max_tokens"`
}

// Descriptor describes one provider. Endpoint and TestEndpoint may contain
// a {model} placeholder.
type Descriptor struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"name"`
	Endpoint     string     `json:"endpoint"`
	TestEndpoint string     `json:"-"`
	DefaultModel string     `json:"defaultModel"`
	Models       []string   `json:"models"`
	WireFormat   WireFormat `json:"wireFormat"`
	Generation   Generation `json:"-"`
}

// URL returns the streaming endpoint for model
func (d Descriptor) URL(model string) string {
	return strings.ReplaceAll(d.Endpoint, "{model}", model)
}

// TestURL returns the endpoint used for connection tests
func (d Descriptor) TestURL(model string) string {
	if d.TestEndpoint == "" {
		return d.URL(model)
	}
	return strings.ReplaceAll(d.TestEndpoint, "{model}", model)
}

// HasModel reports whether model is in the catalog
func (d Descriptor) HasModel(model string) bool {
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// ResolveModel returns selected if it is in the catalog, else the default
func (d Descriptor) ResolveModel(selected string) string {
	if selected != "" && d.HasModel(selected) {
		return selected
	}
	return d.DefaultModel
}

func (d Descriptor) clone() Descriptor {
	d.Models = append([]string(nil), d.Models...)
	return d
}

// Registry is a read-only lookup table built once at startup
type Registry struct {
	order []string
	byID  map[string]Descriptor
}

// NewRegistry builds a registry from descriptors, in order
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.ID == "" {
			return nil, fmt.Errorf("provider descriptor without id")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", d.ID)
		}
		switch d.WireFormat {
		case OpenAIChatSSE, GeminiSSE:
		default:
			return nil, fmt.Errorf("provider %q: unsupported wire format %q", d.ID, d.WireFormat)
		}
		if d.DefaultModel == "" {
			return nil, fmt.Errorf("provider %q: default model is required", d.ID)
		}
		r.order = append(r.order, d.ID)
		r.byID[d.ID] = d.clone()
	}
	return r, nil
}

// Default returns a registry of the built-in providers
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns a provider by id
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return d.clone(), nil
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns provider ids in registration order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// List returns all providers in registration order
func (r *Registry) List() []Descriptor {
	list := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.byID[id].clone())
	}
	return list
}
