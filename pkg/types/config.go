// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "image-tree/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// BackendModels names the model files and sampler the synthesis workflow
// references. The builder passes them through untouched.
type BackendModels struct {
	// CLIP is the text encoder file (default "qwen_3_4b.safetensors").
	CLIP string `json:"clip" yaml:"clip" mapstructure:"clip"`

	// CLIPType is the CLIPLoader type (default "lumina2").
	CLIPType string `json:"clip_type" yaml:"clip_type" mapstructure:"clip_type"`

	// VAE is the autoencoder file (default "ae.safetensors").
	VAE string `json:"vae" yaml:"vae" mapstructure:"vae"`

	// UNET is the diffusion model file (default "z_image_turbo_bf16.safetensors").
	UNET string `json:"unet" yaml:"unet" mapstructure:"unet"`

	// Sampler is the KSampler sampler name (default "res_multistep").
	Sampler string `json:"sampler" yaml:"sampler" mapstructure:"sampler"`

	// Scheduler is the KSampler scheduler (default "simple").
	Scheduler string `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
}

// SynthesisConfig holds settings for the synthesis backend client.
type SynthesisConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the backend root (default "http://localhost:8000").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// PollInterval is the fixed delay between status checks (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// PollTimeout is the overall wait budget for one job (default 5m).
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout" mapstructure:"poll_timeout"`

	// MaxRetries bounds transient retries of a single request (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	Models BackendModels `json:"models" yaml:"models" mapstructure:"models"`
}

// GenerationConfig holds the sampling parameters for every job.
type GenerationConfig struct {
	// Preset, when set, overrides the explicit values below with a named,
	// pre-validated parameter set.
	Preset string `json:"preset,omitempty" yaml:"preset,omitempty" mapstructure:"preset"`

	// Steps is the sampling step count (default 9).
	Steps int `json:"steps" yaml:"steps" mapstructure:"steps"`

	// Guidance is the guidance strength, KSampler cfg (default 1.0).
	Guidance float64 `json:"guidance" yaml:"guidance" mapstructure:"guidance"`

	// Width and Height are the output dimensions, each in [256, 4096]
	// (default 1536x1536).
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`

	// Seed fixes the sampler seed. Zero draws a random seed per attempt.
	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// QualityConfig holds the quality gate and retry budget settings.
type QualityConfig struct {
	// Threshold is the minimum accepted score on a 0-10 scale (default 7.0).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// AccuracyThreshold is the minimum prompt-accuracy score. Zero disables
	// the accuracy check (default 0).
	AccuracyThreshold float64 `json:"accuracy_threshold" yaml:"accuracy_threshold" mapstructure:"accuracy_threshold"`

	// MaxIterations bounds generation attempts per node (default 5).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// SkipEvaluation accepts the first successful artifact without scoring.
	SkipEvaluation bool `json:"skip_evaluation" yaml:"skip_evaluation" mapstructure:"skip_evaluation"`

	// RefinePrompt adjusts the prompt between attempts from evaluation feedback.
	RefinePrompt bool `json:"refine_prompt" yaml:"refine_prompt" mapstructure:"refine_prompt"`
}

// AdvisoryProvider identifies an advisory service implementation.
type AdvisoryProvider string

const (
	ProviderOllama           AdvisoryProvider = "ollama"
	ProviderOpenAI           AdvisoryProvider = "openai"
	ProviderOpenRouter       AdvisoryProvider = "openrouter"
	ProviderOpenAICompatible AdvisoryProvider = "openai_compatible"
)

// AdvisoryConfig holds settings for the advisory (language/vision model) service.
type AdvisoryConfig struct {
	// Provider selects the implementation (default "ollama").
	Provider AdvisoryProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// BaseURL is the service root (default depends on provider).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates hosted providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier (e.g. "gemma3:12b", "openai/gpt-4o").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxTokens caps completion length (default 4000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// Timeout bounds every advisory request (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries bounds retries of transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RateLimit is the sustained request rate per second (default 2).
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TreeConfig holds settings for tree expansion.
type TreeConfig struct {
	// Workers bounds concurrent orchestration runs across all expansions (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// MaxBranches caps children per expansion, at most 4 (default 4).
	MaxBranches int `json:"max_branches" yaml:"max_branches" mapstructure:"max_branches"`
}

// StoreBackend identifies a persistence implementation.
type StoreBackend string

const (
	StoreSQLite StoreBackend = "sqlite"
	StoreRedis  StoreBackend = "redis"
	StoreMemory StoreBackend = "memory"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Backend selects sqlite, redis, or memory (default "sqlite").
	Backend StoreBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file (default "data/image-tree.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// RedisURL is the Redis connection URL (e.g. "redis://localhost:6379/0").
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" mapstructure:"redis_url"`

	// KeywordTTL expires cached keyword extractions in Redis. Zero keeps them.
	KeywordTTL time.Duration `json:"keyword_ttl" yaml:"keyword_ttl" mapstructure:"keyword_ttl"`
}

// ArtifactConfig holds settings for the on-disk artifact store.
type ArtifactConfig struct {
	// Dir is the base directory for accepted images (default "generated_images").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn, or error (default "info").
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console (default "console").
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// ServerConfig holds HTTP adapter settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
}

// AppConfig groups every component configuration.
type AppConfig struct {
	Synthesis  SynthesisConfig  `json:"synthesis" yaml:"synthesis" mapstructure:"synthesis"`
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Quality    QualityConfig    `json:"quality" yaml:"quality" mapstructure:"quality"`
	Advisory   AdvisoryConfig   `json:"advisory" yaml:"advisory" mapstructure:"advisory"`
	Tree       TreeConfig       `json:"tree" yaml:"tree" mapstructure:"tree"`
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Artifacts  ArtifactConfig   `json:"artifacts" yaml:"artifacts" mapstructure:"artifacts"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
}
