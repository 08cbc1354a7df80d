package ai

import (
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenAI-compatible providers
	APIKey string
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[NormalizeProvider(name)]; ok {
		return f(cfg), true
	}
	return nil, false
}

// Providers lists registered provider names in sorted order.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func openAICompatible(defaultURL string) RuntimeFactory {
	return func(c RuntimeConfig) Runtime {
		url := c.BaseURL
		if url == "" {
			url = defaultURL
		}
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, url)
	}
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenRouter, openAICompatible(OpenRouterBaseURL))
	RegisterRuntime(ProviderGroq, openAICompatible(GroqBaseURL))
	RegisterRuntime(ProviderOpenAI, openAICompatible(OpenAIBaseURL))
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		host := c.Host
		if host == "" {
			host = c.BaseURL
		}
		return NewOllamaClient(host, c.HTTPTimeout, c.RetryMax, c.BaseDelay)
	})
}
