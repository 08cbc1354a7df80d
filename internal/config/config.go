package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. STATM8_API_KEY.
const EnvPrefix = "STATM8"

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxPromptTokens int     `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Pipeline
	ListenAddr       string `mapstructure:"listen_addr" yaml:"listen_addr"`
	UploadDir        string `mapstructure:"upload_dir" yaml:"upload_dir"`
	OutputRoot       string `mapstructure:"output_root" yaml:"output_root"`
	PythonBin        string `mapstructure:"python_bin" yaml:"python_bin"`
	ExecTimeoutSec   int    `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`
	MaxRetries       int    `mapstructure:"max_retries" yaml:"max_retries"`
	SampleRows       int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	PromptSampleRows int    `mapstructure:"prompt_sample_rows" yaml:"prompt_sample_rows"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Block event publishing
	WebhookURL   string `mapstructure:"webhook_url" yaml:"webhook_url"`
	RedisURL     string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisChannel string `mapstructure:"redis_channel" yaml:"redis_channel"`

	// Artifact upload
	ArtifactBackend       string `mapstructure:"artifact_backend" yaml:"artifact_backend"`
	ArtifactPrefix        string `mapstructure:"artifact_prefix" yaml:"artifact_prefix"`
	ArtifactPublicBaseURL string `mapstructure:"artifact_public_base_url" yaml:"artifact_public_base_url"`
	MinIOEndpoint         string `mapstructure:"minio_endpoint" yaml:"minio_endpoint"`
	MinIOAccessKey        string `mapstructure:"minio_access_key" yaml:"minio_access_key"`
	MinIOSecretKey        string `mapstructure:"minio_secret_key" yaml:"minio_secret_key"`
	MinIOBucket           string `mapstructure:"minio_bucket" yaml:"minio_bucket"`
	MinIORegion           string `mapstructure:"minio_region" yaml:"minio_region"`
	MinIOUseSSL           bool   `mapstructure:"minio_use_ssl" yaml:"minio_use_ssl"`
	S3Bucket              string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region              string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint            string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3UsePathStyle        bool   `mapstructure:"s3_use_path_style" yaml:"s3_use_path_style"`
}

// ExecTimeout is the per-block execution limit; zero means none.
func (c *Global) ExecTimeout() time.Duration {
	if c.ExecTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.ExecTimeoutSec) * time.Second
}

// DefaultDir returns ~/.statm8.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".statm8"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.statm8/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// The file may hold API keys.
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("default_provider", "groq")
	v.SetDefault("default_model", "llama-3.1-8b-instant")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_prompt_tokens", 0)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Pipeline defaults
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("output_root", filepath.Join("outputs", "plots"))
	v.SetDefault("python_bin", "python3")
	v.SetDefault("exec_timeout_sec", 120)
	v.SetDefault("max_retries", 2)
	v.SetDefault("sample_rows", 5)
	v.SetDefault("prompt_sample_rows", 3)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	// Integrations are off unless configured; defaults make the keys visible to AutomaticEnv.
	for _, k := range []string{
		"webhook_url", "redis_url", "redis_channel",
		"artifact_prefix", "artifact_public_base_url",
		"minio_endpoint", "minio_access_key", "minio_secret_key", "minio_bucket", "minio_region",
		"s3_bucket", "s3_region", "s3_endpoint",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("artifact_backend", "none")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("s3_use_path_style", false)
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
