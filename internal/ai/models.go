package ai

// Model metadata used to size prompts and annotate usage logs.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	// Groq
	"llama-3.1-8b-instant":    {Name: "llama-3.1-8b-instant", ContextTokens: 131072, InputPerK: 0.00005, OutputPerK: 0.00008},
	"llama-3.3-70b-versatile": {Name: "llama-3.3-70b-versatile", ContextTokens: 131072, InputPerK: 0.00059, OutputPerK: 0.00079},
	// OpenRouter
	"openai/gpt-4o-mini":               {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.0006, OutputPerK: 0.0024},
	"meta-llama/llama-3.1-8b-instruct": {Name: "meta-llama/llama-3.1-8b-instruct", ContextTokens: 131072},
	"deepseek/deepseek-r1:free":        {Name: "deepseek/deepseek-r1:free", ContextTokens: 128000},
	// OpenAI
	"gpt-4o-mini": {Name: "gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	// Ollama
	"llama3.1:8b": {Name: "llama3.1:8b", ContextTokens: 8192},
}

var defaultModels = map[string]string{
	ProviderGroq:       "llama-3.1-8b-instant",
	ProviderOpenRouter: "meta-llama/llama-3.1-8b-instruct",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOllama:     "llama3.1:8b",
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	if m, ok := defaultModels[NormalizeProvider(provider)]; ok {
		return m
	}
	return defaultModels[ProviderGroq]
}

// LookupModel returns metadata for a model name if known.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates the cost for given token usage on a model.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	cost := (float64(promptTokens)/1000.0)*mi.InputPerK + (float64(completionTokens)/1000.0)*mi.OutputPerK
	return cost, true
}
