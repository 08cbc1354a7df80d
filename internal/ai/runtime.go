package ai

import "context"

// Runtime is the minimal interface implemented by chat model backends
// such as OpenRouter, Groq and local runtimes (e.g., Ollama).
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI and server for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// NormalizeProvider maps aliases onto a registered provider name.
func NormalizeProvider(name string) string {
	switch name {
	case "", ProviderOpenRouter:
		return ProviderOpenRouter
	case ProviderLocal:
		return ProviderOllama
	}
	return name
}
