package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/ai"
	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/artifactstore"
	"github.com/KaramelBytes/statm8/internal/codegen"
	cfgpkg "github.com/KaramelBytes/statm8/internal/config"
	"github.com/KaramelBytes/statm8/internal/executor"
	"github.com/KaramelBytes/statm8/internal/pipeline"
	"github.com/KaramelBytes/statm8/internal/publish"
	"github.com/KaramelBytes/statm8/internal/publish/redis"
	"github.com/KaramelBytes/statm8/internal/publish/webhook"
	"github.com/KaramelBytes/statm8/internal/utils"
)

// providerKeyEnv names the conventional API key variable of each hosted provider.
var providerKeyEnv = map[string]string{
	ai.ProviderOpenRouter: "OPENROUTER_API_KEY",
	ai.ProviderGroq:       "GROQ_API_KEY",
	ai.ProviderOpenAI:     "OPENAI_API_KEY",
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.DefaultProvider != "" {
		providerName = strings.ToLower(cfg.DefaultProvider)
	}
	providerName = ai.NormalizeProvider(providerName)

	apiKey := ""
	if env, ok := providerKeyEnv[providerName]; ok {
		apiKey = os.Getenv(env)
	}
	if apiKey == "" && cfg != nil && cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
	}
	if cfg != nil {
		rc.BaseURL = cfg.BaseURL
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = ai.DefaultOllamaHost
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (use %s)", providerName, strings.Join(ai.Providers(), "|"))
	}
	return client, providerName, nil
}

// selectModel resolves the model: explicit flag, then config (only when the
// configured provider is the one in use), then the provider's default.
func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		if cfg.DefaultProvider == "" || ai.NormalizeProvider(strings.ToLower(cfg.DefaultProvider)) == provider {
			return cfg.DefaultModel
		}
	}
	return ai.DefaultModel(provider)
}

func profileOptions(cfg *cfgpkg.Global) analysis.Options {
	opt := analysis.DefaultOptions()
	if cfg != nil && cfg.SampleRows > 0 {
		opt.SampleRows = cfg.SampleRows
	}
	return opt
}

type pipelineOptions struct {
	Provider   string
	Model      string
	OllamaHost string
}

// newPipeline wires the model runtime, code generator and executor from config.
func newPipeline(cfg *cfgpkg.Global, opts pipelineOptions, logger *zap.Logger) (*pipeline.Pipeline, error) {
	rt, provider, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: opts.Provider, OllamaHost: opts.OllamaHost})
	if err != nil {
		return nil, err
	}
	model := selectModel(cfg, provider, opts.Model)
	logger.Debug("model runtime ready", zap.String("provider", provider), zap.String("model", model))

	gen := codegen.New(rt, codegen.Config{
		Model:            model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		PromptSampleRows: cfg.PromptSampleRows,
		MaxPromptTokens:  cfg.MaxPromptTokens,
	}, logger.Named("codegen"))
	exec := executor.New(executor.Config{
		PythonBin: cfg.PythonBin,
		Timeout:   cfg.ExecTimeout(),
	}, logger.Named("executor"))
	return pipeline.New(gen, exec, pipeline.Config{
		OutputRoot: cfg.OutputRoot,
		MaxRetries: cfg.MaxRetries,
		Profile:    profileOptions(cfg),
	}, logger.Named("pipeline")), nil
}

// newRecorder builds the terminal-block recorder from the configured
// publishers and artifact store. The returned recorder is disabled when
// nothing is configured; close releases publisher connections.
func newRecorder(ctx context.Context, cfg *cfgpkg.Global, logger *zap.Logger) (rec *publish.Recorder, closeFn func() error, err error) {
	retries := cfg.RetryMaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	var pubs publish.Multi
	defer func() {
		if err != nil {
			_ = pubs.Close()
		}
	}()
	if cfg.WebhookURL != "" {
		wh, err := webhook.New(webhook.Config{URL: cfg.WebhookURL, Retries: retries})
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, wh)
		logger.Info("publishing block events to webhook", zap.String("url", cfg.WebhookURL))
	}
	if cfg.RedisURL != "" {
		rp, err := redis.New(redis.Config{URL: cfg.RedisURL, Channel: cfg.RedisChannel, Retries: retries})
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, rp)
		logger.Info("publishing block events to redis", zap.String("channel", rp.Channel()))
	}

	store, err := artifactstore.New(ctx, artifactStoreConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("artifact store: %w", err)
	}

	rec = &publish.Recorder{Logger: logger.Named("publish")}
	if store != nil {
		rec.Uploader = store
		logger.Info("uploading artifacts", zap.String("backend", cfg.ArtifactBackend))
	}
	if len(pubs) > 0 {
		rec.Publisher = pubs
	}
	return rec, pubs.Close, nil
}

func artifactStoreConfig(cfg *cfgpkg.Global) artifactstore.Config {
	sc := artifactstore.Config{
		Backend:       cfg.ArtifactBackend,
		Prefix:        cfg.ArtifactPrefix,
		PublicBaseURL: cfg.ArtifactPublicBaseURL,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ArtifactBackend)) {
	case artifactstore.BackendMinIO:
		sc.Endpoint = cfg.MinIOEndpoint
		sc.Bucket = cfg.MinIOBucket
		sc.Region = cfg.MinIORegion
		sc.AccessKey = cfg.MinIOAccessKey
		sc.SecretKey = cfg.MinIOSecretKey
		sc.UseSSL = cfg.MinIOUseSSL
	case artifactstore.BackendS3:
		sc.Endpoint = cfg.S3Endpoint
		sc.Bucket = cfg.S3Bucket
		sc.Region = cfg.S3Region
		sc.UsePathStyle = cfg.S3UsePathStyle
	}
	return sc
}

// writeJSON prints v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
