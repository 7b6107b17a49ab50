package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed tuning.yaml
var tuningYAML []byte

type Config struct {
	OpenAI OpenAIConfig
	Gemini GeminiConfig
	Llama  LlamaConfig
	Ollama OllamaConfig
	Cache  CacheConfig
	Tuning TuningConfig
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type LlamaConfig struct {
	APIKey string
	URL    string // defaults to https://api.llama.com/v1
	Model  string // defaults to Llama-4-Maverick-17B-128E-Instruct-FP8
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to gemma3:4b
}

type CacheConfig struct {
	Path          string // JSON file path for the file-backed cache
	DatabaseURL   string // PostgreSQL connection URL for the database-backed cache
	DurationHours int    // time-to-live for cached analyses (default 24)
	MaxOpenConns  int    // maximum open database connections (default 25)
	MaxIdleConns  int    // maximum idle database connections (default 5)
}

type TuningConfig struct {
	Providers map[string]ProviderTuning `yaml:"providers"`
}

// ProviderTuning holds the per-provider request orchestration settings:
// rate caps, circuit breaker thresholds, backoff strategy and batch bounds.
type ProviderTuning struct {
	MaxRequestsPerMinute   int     `yaml:"max_requests_per_minute"`
	MaxRequestsPerSecond   int     `yaml:"max_requests_per_second"`
	MaxConcurrentRequests  int     `yaml:"max_concurrent_requests"`
	FailureThreshold       int     `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int     `yaml:"recovery_timeout_seconds"`
	HalfOpenMaxCalls       int     `yaml:"half_open_max_calls"`
	InitialDelayMS         int     `yaml:"initial_delay_ms"`
	MaxDelayMS             int     `yaml:"max_delay_ms"`
	Multiplier             float64 `yaml:"multiplier"`
	JitterFraction         float64 `yaml:"jitter_fraction"`
	MaxAttempts            int     `yaml:"max_attempts"`
	MinBatchSize           int     `yaml:"min_batch_size"`
	MaxBatchSize           int     `yaml:"max_batch_size"`
	RequestTimeoutSeconds  int     `yaml:"request_timeout_seconds"`
	MaxRequeues            int     `yaml:"max_requeues"`
	InputPricePer1M        float64 `yaml:"input_price_per_1m"`
	OutputPricePer1M       float64 `yaml:"output_price_per_1m"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var tuning TuningConfig
	if err := yaml.Unmarshal(tuningYAML, &tuning); err != nil {
		// Embedded file, so this can only happen if the file itself is broken.
		panic("failed to unmarshal embedded tuning.yaml: " + err.Error())
	}

	return &Config{
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Llama: LlamaConfig{
			APIKey: os.Getenv("LLAMA_API_KEY"),
			URL:    os.Getenv("LLAMA_API_URL"),
			Model:  os.Getenv("LLAMA_MODEL"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Cache: CacheConfig{
			Path:          os.Getenv("CACHE_PATH"),
			DatabaseURL:   os.Getenv("DATABASE_URL"),
			DurationHours: envInt("CACHE_DURATION_HOURS", 24),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Tuning: tuning,
	}
}

// GetProviderTuning returns tuning for a specific provider with a conservative
// fallback when the provider has no entry in the embedded defaults.
func (c *Config) GetProviderTuning(providerName string) ProviderTuning {
	if t, ok := c.Tuning.Providers[providerName]; ok {
		return t
	}
	return ProviderTuning{
		MaxRequestsPerMinute:   300,
		MaxRequestsPerSecond:   5,
		MaxConcurrentRequests:  2,
		FailureThreshold:       3,
		RecoveryTimeoutSeconds: 60,
		HalfOpenMaxCalls:       2,
		InitialDelayMS:         2000,
		MaxDelayMS:             120000,
		Multiplier:             2.0,
		JitterFraction:         0.25,
		MaxAttempts:            5,
		MinBatchSize:           1,
		MaxBatchSize:           2,
		RequestTimeoutSeconds:  120,
		MaxRequeues:            5,
	}
}
