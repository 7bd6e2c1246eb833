// Package embedding abstracts away how memory text becomes a vector.
// Grounded on rcliao-agent-memory's internal/embedding/embedding.go (the
// Embedder interface, CosineSimilarity, and the Ollama/OpenAI HTTP clients),
// generalised to the provider set this module exposes: none, local, and a
// single configurable HTTPEmbedder that covers both Ollama- and
// OpenAI-shaped APIs.
package embedding

import (
	"context"
	"math"

	"github.com/mmesh/memorymesh/internal/errs"
)

// Vector is an embedding: a fixed-length slice of float32 components.
type Vector []float32

// Embedder computes vectors for text. Embed's second return value reports
// availability: a provider that is configured but temporarily unreachable
// returns ok=false rather than an error, so callers can fall back to
// keyword-only operation instead of failing the whole call.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, bool, error)
	Dims() int
}

// CosineSimilarity returns the cosine similarity of a and b, in [-1, 1].
// Vectors of mismatched length, or either vector of zero magnitude, yield 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		magA += fa * fa
		magB += fb * fb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Factory builds an Embedder from a provider-specific config map. Concrete
// providers register themselves via Register.
type Factory func(config map[string]string) (Embedder, error)

var registry = map[string]Factory{}

// Register adds a named provider factory. Intended to be called from
// package init() in the provider's own file.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New constructs the named provider's Embedder. An unknown name is an
// invalid-argument error, not a panic — provider selection is a runtime
// configuration value, typically sourced from an environment variable or a
// caller-supplied config struct.
func New(name string, config map[string]string) (Embedder, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errs.Wrap(errs.InvalidArgument, "unknown embedding provider", errs.V("provider", name))
	}
	return factory(config)
}

func init() {
	Register("none", func(map[string]string) (Embedder, error) { return NoneEmbedder{}, nil })
	Register("local", func(config map[string]string) (Embedder, error) {
		dims := 256
		return NewLocalEmbedder(dims), nil
	})
	Register("http", func(config map[string]string) (Embedder, error) {
		return NewHTTPEmbedder(HTTPConfig{
			BaseURL:  config["base_url"],
			Model:    config["model"],
			APIKey:   config["api_key"],
			AuthMode: config["auth_mode"],
			Dims:     atoiOr(config["dims"], 0),
		})
	})
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
